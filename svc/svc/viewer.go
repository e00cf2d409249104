// Package svc holds the application services behind the HTTP API: the
// snapshot viewer and the self-hosted paste provider.
package svc

import (
	"context"
	"time"

	"raisu/metrics"
	"raisu/pkg/domain"
	"raisu/pkg/pipeline"
	"raisu/svc/util"
)

// Viewer resolves shortcodes to snapshots. It adds logging and metrics
// around the pipeline; the pipeline itself stays side-effect free.
type Viewer struct {
	pipeline *pipeline.Pipeline
	timeout  time.Duration
}

func NewViewer(f pipeline.Fetcher, opts pipeline.Options, timeout time.Duration) *Viewer {
	return &Viewer{pipeline: pipeline.New(f, opts), timeout: timeout}
}

func (v *Viewer) Load(ctx context.Context, code string) (*pipeline.Result, error) {
	if code == "" {
		return nil, domain.ErrCodeRequired
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := v.pipeline.Load(ctx, code)
	if err != nil {
		stage, _ := domain.StageOf(err)
		metrics.SnapshotLoads.WithLabelValues(string(stage)).Inc()
		util.Warn().
			Err(err).
			Str("request_id", util.GetRequestID(ctx)).
			Str("code", util.RedactToken(code)).
			Str("stage", string(stage)).
			Msg("snapshot load failed")
		return nil, err
	}
	metrics.SnapshotLoads.WithLabelValues("ok").Inc()
	metrics.SnapshotComponents.Observe(float64(res.Snapshot.ComponentCount()))
	for _, w := range res.Warnings {
		metrics.SchemaWarnings.WithLabelValues(string(w.Kind)).Inc()
		util.Warn().
			Str("request_id", util.GetRequestID(ctx)).
			Str("code", util.RedactToken(code)).
			Str("kind", string(w.Kind)).
			Str("path", w.Path).
			Msg(w.Message)
	}
	util.Debug().
		Str("request_id", util.GetRequestID(ctx)).
		Uint8("provider", res.ProviderID).
		Str("paste_key", util.RedactToken(res.PasteKey)).
		Int("categories", len(res.Snapshot.Categories)).
		Dur("took", time.Since(start)).
		Msg("snapshot loaded")
	return res, nil
}
