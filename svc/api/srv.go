// Package api exposes the snapshot viewer and the self-hosted paste
// provider over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"raisu/cfg"
	"raisu/pkg/domain"
	"raisu/pkg/pipeline"
	"raisu/svc/lim"
	"raisu/svc/util"
)

// SnapshotLoader is satisfied by *svc.Viewer.
type SnapshotLoader interface {
	Load(ctx context.Context, code string) (*pipeline.Result, error)
}

// PasteService is satisfied by *svc.Paste.
type PasteService interface {
	Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, string, error)
	Get(ctx context.Context, id string) (*domain.Paste, error)
	Delete(ctx context.Context, id, token string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ClientHasher interface {
	Hash(ip string) (string, error)
}

// Deps are the collaborators behind the routes. Paste, Limiter, Hasher and
// Cache may be nil; without Paste the paste routes are not mounted.
type Deps struct {
	Viewer  SnapshotLoader
	Paste   PasteService
	Limiter *lim.Limiter
	Hasher  ClientHasher
	DB      Pinger
	Cache   Pinger
}

type Server struct {
	router     *chi.Mux
	cfg        *cfg.Cfg
	db         Pinger
	cache      Pinger
	httpServer *http.Server
}

func NewServer(c *cfg.Cfg, d Deps) *Server {
	s := &Server{cfg: c, db: d.DB, cache: d.Cache}
	r := chi.NewRouter()
	mw := NewMw(d.Limiter, c)

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.BasicAuthMetrics)
		r.Handle("/metrics", promhttp.Handler())
		r.Mount("/debug", middleware.Profiler())
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", util.RedactURL(req.URL)).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.JSONContentType)
		r.Use(mw.Instrument)
		r.Use(mw.AnomalyDetection)

		// Preflights end in CORS; this route only gives them a match.
		r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		snap := &SnapshotHdl{viewer: d.Viewer, maxAge: c.SnapshotMaxAge}
		r.With(mw.RateLimit("snapshot")).Get("/api/snapshot", snap.GetSnapshot)

		if d.Paste != nil {
			hdl := &Hdl{paste: d.Paste, hasher: d.Hasher, cfg: c}
			r.With(mw.RateLimit("create")).Post("/pastes", hdl.CreatePaste)
			r.With(mw.RateLimit("read")).Get("/pastes/{id}", hdl.GetPaste)
			r.With(mw.RateLimit("delete")).Delete("/pastes/{id}", hdl.DeletePaste)
			r.With(mw.RateLimit("read")).Get("/config/presets", hdl.GetPresets)
		}
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              ":" + c.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    256 * 1024,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
