package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"regexp"
)

var (
	secretPattern = regexp.MustCompile(`(?i)(password|token|secret|key|pepper|code)=([^\s&]+)`)
	longToken     = regexp.MustCompile(`[A-Za-z0-9_-]{40,}`)
)

// RedactToken keeps enough of a shortcode or deletion token to correlate log
// lines without leaking the embedded key.
func RedactToken(token string) string {
	if len(token) == 0 {
		return ""
	}
	if len(token) <= 12 {
		return "[TOKEN-REDACTED]"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// Fingerprint is a short stable digest for values that must never be logged
// verbatim, such as paste keys.
func Fingerprint(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:6])
}

func RedactSecret(s string) string {
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}

// RedactURL strips query values that may carry a shortcode.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	q := c.Query()
	for k := range q {
		q.Set(k, "[REDACTED]")
	}
	c.RawQuery = q.Encode()
	return c.String()
}

// RedactLogLine scrubs free text such as wrapped error chains.
func RedactLogLine(line string) string {
	return RedactSecret(longToken.ReplaceAllString(line, "[TOKEN-REDACTED]"))
}

func RedactIP(ip string) string {
	host, _, err := net.SplitHostPort(ip)
	if err == nil {
		ip = host
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "hash:" + Fingerprint(ip)
	}
	if v4 := parsed.To4(); v4 != nil {
		v4[3] = 0
		return v4.String()
	}
	v6 := parsed.To16()
	for i := 4; i < 16; i++ {
		v6[i] = 0
	}
	return v6.String()
}
