package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"raisu/cfg"
	"raisu/pkg/domain"
	"raisu/svc/lim"
	"raisu/svc/util"
)

var errTokenRequired = domain.NewErr("TOKEN_REQUIRED", "missing X-Deletion-Token header", http.StatusBadRequest)

type Hdl struct {
	paste  PasteService
	hasher ClientHasher
	cfg    *cfg.Cfg
}

type CreateReq struct {
	Content  string `json:"content"`
	Duration string `json:"duration,omitempty"`
}

type CreateResp struct {
	ID            string    `json:"id"`
	DeletionToken string    `json:"deletion_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().Str("content_type", contentType).Msg("invalid Content-Type header")
		writeErr(w, domain.NewErr("UNSUPPORTED_MEDIA_TYPE", "expected Content-Type: application/json",
			http.StatusUnsupportedMediaType), requestID)
		return
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" && ce != "identity" {
		log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	// Room for the JSON framing around a maximum-size envelope.
	limit := h.cfg.MaxPasteSize + 4096
	if r.ContentLength > limit {
		log.Warn().Int64("content_length", r.ContentLength).Msg("Content-Length exceeds maximum")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			writeErr(w, domain.ErrPasteTooLarge, requestID)
		case err == io.EOF:
			log.Warn().Msg("empty request body")
			writeErr(w, domain.ErrInvalidRequest, requestID)
		default:
			log.Warn().Err(err).Msg("invalid request")
			writeErr(w, domain.ErrInvalidRequest, requestID)
		}
		return
	}

	var dur time.Duration
	if req.Duration != "" {
		if dur, err = time.ParseDuration(req.Duration); err != nil {
			log.Warn().Str("duration", req.Duration).Msg("invalid duration")
			writeErr(w, domain.ErrInvalidDuration, requestID)
			return
		}
	}

	var clientHash string
	if h.hasher != nil {
		realIP := lim.GetRealIP(r, h.cfg.TrustedProxies)
		if clientHash, err = h.hasher.Hash(realIP); err != nil {
			log.Error().Err(err).Str("ip", util.RedactIP(realIP)).Msg("failed to hash client IP")
			writeErr(w, domain.ErrInternalServer, requestID)
			return
		}
	}

	paste, token, err := h.paste.Create(r.Context(), domain.CreateParams{
		Envelope:     strings.TrimSpace(req.Content),
		Duration:     dur,
		ClientIPHash: clientHash,
	})
	if err != nil {
		if domain.Status(err) >= 500 {
			log.Error().Err(err).Msg("failed to create paste")
		} else {
			log.Warn().Err(err).Msg("paste rejected")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.ID).
		Time("expires_at", paste.ExpiresAt).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		ID:            paste.ID,
		DeletionToken: token,
		ExpiresAt:     paste.ExpiresAt,
	})
}

// GetPaste serves the raw envelope the way public paste hosts do, so the
// fetcher treats every provider alike.
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if len(id) != util.IDLength {
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	paste, err := h.paste.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrPasteNotFound) {
			hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("get failed")
		}
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(paste.Envelope)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, paste.Envelope)
}

func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	token := r.Header.Get("X-Deletion-Token")
	if token == "" {
		writeErr(w, errTokenRequired, requestID)
		return
	}
	if err := h.paste.Delete(r.Context(), id, token); err != nil {
		if errors.Is(err, util.ErrTokenForged) || errors.Is(err, util.ErrTokenExpired) ||
			errors.Is(err, util.ErrTokenUsed) || errors.Is(err, util.ErrTokenMalformed) {
			err = domain.ErrUnauthorized
		}
		if errors.Is(err, domain.ErrUnauthorized) {
			log.Warn().Str("paste_id", id).Str("client_ip", util.RedactIP(r.RemoteAddr)).Msg("deletion refused")
		}
		writeErr(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func (h *Hdl) GetPresets(w http.ResponseWriter, r *http.Request) {
	presets := make([]string, len(h.cfg.TTLPresets))
	for i, d := range h.cfg.TTLPresets {
		presets[i] = d.String()
	}
	json.NewEncoder(w).Encode(presets)
}

// writeErr renders err as an ErrResp. Internal errors never leak their
// message.
func writeErr(w http.ResponseWriter, err error, requestID string) {
	status := domain.Status(err)
	resp := domain.ToResp(err)
	if status == http.StatusInternalServerError {
		util.Error().Str("error", util.RedactLogLine(err.Error())).Str("request_id", requestID).Msg("internal error")
		resp = domain.ToResp(domain.ErrInternalServer)
	}
	if requestID != "" {
		resp.Error.Meta = map[string]interface{}{"request_id": requestID}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
