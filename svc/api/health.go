package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"raisu/svc/util"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Ready    bool   `json:"ready"`
	Degraded bool   `json:"degraded"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// Ready fails when the paste store is down. A missing or failing shared
// cache only degrades the service since every cache tier is optional.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := ReadyResponse{Ready: true, Database: "up", Cache: "up"}

	if s.db == nil {
		resp.Database = "disabled"
	} else {
		dbCtx, dbCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer dbCancel()
		if err := s.db.Ping(dbCtx); err != nil {
			util.Error().Err(err).Msg("database health check failed")
			resp.Database = "down"
			resp.Ready = false
		}
	}
	if s.cache == nil {
		resp.Cache = "unavailable"
	} else {
		cacheCtx, cacheCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cacheCancel()
		if err := s.cache.Ping(cacheCtx); err != nil {
			util.Warn().Err(err).Msg("cache health check failed")
			resp.Cache = "down"
			resp.Degraded = true
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
