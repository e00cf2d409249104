// Package fetch retrieves sealed envelopes from paste providers.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"raisu/metrics"
	"raisu/pkg/domain"
)

// Well-known provider ids carried in shortcodes.
const (
	ProviderPastesDev uint8 = 0
	ProviderHastebin  uint8 = 1
	ProviderSelf      uint8 = 2
)

const defaultMaxBytes = 8 * 1024 * 1024

type Provider struct {
	ID      uint8
	Name    string
	BaseURL string
}

// URL returns where key is stored at p.
func (p Provider) URL(key string) string {
	return strings.TrimRight(p.BaseURL, "/") + "/" + url.PathEscape(key)
}

type Config struct {
	PastesDevURL string
	HastebinURL  string
	// SelfURL is the public base URL of this service. Empty leaves the
	// self-hosted provider unregistered.
	SelfURL  string
	Timeout  time.Duration
	MaxBytes int64
}

// HTTP fetches raw envelope text over HTTP. It never retries.
type HTTP struct {
	providers map[uint8]Provider
	client    *http.Client
	maxBytes  int64
}

func NewHTTP(c Config) *HTTP {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	h := &HTTP{
		providers: make(map[uint8]Provider, 3),
		client:    &http.Client{Timeout: c.Timeout},
		maxBytes:  c.MaxBytes,
	}
	if c.PastesDevURL != "" {
		h.Register(Provider{ID: ProviderPastesDev, Name: "pastes.dev", BaseURL: c.PastesDevURL})
	}
	if c.HastebinURL != "" {
		h.Register(Provider{ID: ProviderHastebin, Name: "hastebin", BaseURL: c.HastebinURL})
	}
	if c.SelfURL != "" {
		h.Register(Provider{ID: ProviderSelf, Name: "self", BaseURL: strings.TrimRight(c.SelfURL, "/") + "/pastes"})
	}
	return h
}

// Register adds or replaces a provider. It is not safe to call while
// fetches are in flight.
func (h *HTTP) Register(p Provider) {
	h.providers[p.ID] = p
}

func (h *HTTP) Provider(id uint8) (Provider, bool) {
	p, ok := h.providers[id]
	return p, ok
}

func (h *HTTP) Fetch(ctx context.Context, providerID uint8, pasteKey string) (string, error) {
	p, ok := h.providers[providerID]
	if !ok {
		return "", &domain.FormatError{
			Kind: domain.FormatUnknownProvider,
			Msg:  "unknown provider id " + strconv.Itoa(int(providerID)),
		}
	}
	start := time.Now()
	text, err := h.get(ctx, p, pasteKey)
	result := "ok"
	if err != nil {
		result = "error"
		var te *domain.TransportError
		if errors.As(err, &te) {
			result = strings.ToLower(te.Code)
		}
	}
	metrics.FetchDuration.WithLabelValues(p.Name, result).Observe(time.Since(start).Seconds())
	return text, err
}

func (h *HTTP) get(ctx context.Context, p Provider, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(key), nil)
	if err != nil {
		return "", &domain.TransportError{Provider: p.ID, Code: domain.TransportNetwork, Err: err}
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", "raisu")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", &domain.TransportError{Provider: p.ID, Code: transportCode(ctx, err), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &domain.TransportError{Provider: p.ID, Status: resp.StatusCode, Code: domain.TransportStatus}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return "", &domain.TransportError{Provider: p.ID, Status: resp.StatusCode, Code: transportCode(ctx, err), Err: err}
	}
	if int64(len(body)) > h.maxBytes {
		return "", &domain.TransportError{Provider: p.ID, Status: resp.StatusCode, Code: domain.TransportTooBig}
	}
	return strings.TrimSpace(string(body)), nil
}

func transportCode(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.TransportTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.TransportTimeout
	}
	return domain.TransportNetwork
}
