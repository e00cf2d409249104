// Package pipeline chains token decoding, paste fetch, decryption, wire
// decoding and schema mapping into one call. It keeps no state between
// calls and caches nothing.
package pipeline

import (
	"context"

	"raisu/pkg/domain"
	"raisu/pkg/envelope"
	"raisu/pkg/schema"
	"raisu/pkg/shortcode"
	"raisu/pkg/wire"
)

// Fetcher returns the base64 envelope stored under pasteKey at a provider.
// Implementations must fail unknown providers with UNKNOWN_PROVIDER before
// touching the network and must not retry.
type Fetcher interface {
	Fetch(ctx context.Context, providerID uint8, pasteKey string) (string, error)
}

type FetcherFunc func(ctx context.Context, providerID uint8, pasteKey string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, providerID uint8, pasteKey string) (string, error) {
	return f(ctx, providerID, pasteKey)
}

type Options struct {
	Codec    wire.Codec
	MaxDepth int
}

type Pipeline struct {
	fetcher Fetcher
	wire    wire.Options
	mapper  schema.Mapper
}

func New(f Fetcher, opts Options) *Pipeline {
	return &Pipeline{
		fetcher: f,
		wire:    wire.Options{Codec: opts.Codec, MaxDepth: opts.MaxDepth},
		mapper:  schema.Mapper{MaxDepth: opts.MaxDepth},
	}
}

type Result struct {
	Snapshot   *domain.Snapshot
	Warnings   []schema.Warning
	ProviderID uint8
	PasteKey   string
}

// Load resolves a shortcode to a Snapshot. Every failure is a
// *domain.PipelineError naming the stage it came from.
func (p *Pipeline) Load(ctx context.Context, code string) (*Result, error) {
	tok, err := shortcode.Decode(code)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageToken, Err: err}
	}
	text, err := p.fetcher.Fetch(ctx, tok.ProviderID, tok.PasteKey)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageFetch, Err: err}
	}
	res, err := p.Open(text, tok.SymmetricKey[:])
	if err != nil {
		return nil, err
	}
	res.ProviderID = tok.ProviderID
	res.PasteKey = tok.PasteKey
	return res, nil
}

// Open runs the stages after fetch on an envelope already in hand.
func (p *Pipeline) Open(text string, key []byte) (*Result, error) {
	plain, err := envelope.Open(text, key)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageDecrypt, Err: err}
	}
	doc, err := wire.Decode(plain, p.wire)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageDecode, Err: err}
	}
	snap, warns, err := p.mapper.Map(doc)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageSchema, Err: err}
	}
	return &Result{Snapshot: snap, Warnings: warns}, nil
}

// Load runs a one-off pipeline with default options.
func Load(ctx context.Context, f Fetcher, code string) (*Result, error) {
	return New(f, Options{}).Load(ctx, code)
}
