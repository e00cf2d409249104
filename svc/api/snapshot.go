package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"raisu/pkg/domain"
	"raisu/pkg/schema"
	"raisu/svc/util"
)

type SnapshotHdl struct {
	viewer SnapshotLoader
	maxAge time.Duration
}

// SnapshotResp is the decoded snapshot plus any soft warnings.
type SnapshotResp struct {
	*domain.Snapshot
	Warnings []schema.Warning `json:"warnings"`
}

func (h *SnapshotHdl) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	code := r.URL.Query().Get("code")
	if code == "" {
		writeErr(w, domain.ErrCodeRequired, requestID)
		return
	}
	res, err := h.viewer.Load(r.Context(), code)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []schema.Warning{}
	}
	if h.maxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.maxAge.Seconds())))
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SnapshotResp{Snapshot: res.Snapshot, Warnings: warnings})
}
