package util

import (
	"context"
	"crypto/rand"

	"github.com/pkg/errors"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// IDLength gives ~59 bits, ample for short-lived pastes and well under
	// the 255 byte paste key limit of a shortcode.
	IDLength   = 10
	maxRetries = 5
)

var ErrIDCollision = errors.New("id collision after retries")

// GenID draws base62 ids until exists reports one as free.
func GenID(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for retry := 0; retry < maxRetries; retry++ {
		id, err := RandomBase62(IDLength)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return "", errors.Wrap(err, "id exists check")
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrIDCollision
}

// RandomBase62 returns n characters drawn uniformly; bytes >= 248 are
// rejected so the alphabet has no modulo bias.
func RandomBase62(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			out = append(out, base62Chars[b%62])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
