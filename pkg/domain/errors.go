package domain

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrPasteTooLarge      = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusBadRequest)
	ErrInvalidDuration    = NewErr("INVALID_DURATION", "invalid duration", http.StatusBadRequest)
	ErrInvalidEnvelope    = NewErr("INVALID_ENVELOPE", "content is not an encrypted envelope", http.StatusBadRequest)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrContentRequired    = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrCodeRequired       = NewErr("CODE_REQUIRED", "missing 'code' query parameter", http.StatusBadRequest)
	ErrRateLimitExceeded  = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrUnauthorized       = NewErr("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrIDGenerationFailed = NewErr("ID_GENERATION_FAILED", "id generation failed", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}

type ErrDetail struct {
	Code  string                 `json:"code"`
	Msg   string                 `json:"message"`
	Stage string                 `json:"stage,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// FormatErrorKind classifies deterministic input failures.
type FormatErrorKind string

const (
	FormatMalformedToken    FormatErrorKind = "MALFORMED_TOKEN"
	FormatBadKeyLength      FormatErrorKind = "BAD_KEY_LENGTH"
	FormatUnknownProvider   FormatErrorKind = "UNKNOWN_PROVIDER"
	FormatMalformedWireData FormatErrorKind = "MALFORMED_WIRE_DATA"
	FormatSchemaMismatch    FormatErrorKind = "SCHEMA_MISMATCH"
)

// FormatError reports a malformed token, payload or schema. Path is set for
// schema mismatches and names the offending field, e.g.
// categories[2].components[0].data.current.
type FormatError struct {
	Kind FormatErrorKind
	Path string
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is matches any FormatError of the same kind, so the sentinels below work
// with errors.Is.
func (e *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	return ok && t.Kind == e.Kind
}

type CryptoErrorKind string

const (
	CryptoInvalidCiphertext CryptoErrorKind = "INVALID_CIPHERTEXT"
	CryptoInvalidKey        CryptoErrorKind = "INVALID_KEY"
)

// CryptoError covers wrong keys and corrupted ciphertext alike; the two are
// indistinguishable from the outside.
type CryptoError struct {
	Kind CryptoErrorKind
	Msg  string
	Err  error
}

func (e *CryptoError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CryptoError) Unwrap() error { return e.Err }

func (e *CryptoError) Is(target error) bool {
	t, ok := target.(*CryptoError)
	return ok && t.Kind == e.Kind
}

// TransportError is a remote or network failure while fetching a paste.
// Status is the upstream HTTP status, zero when no response arrived.
type TransportError struct {
	Provider uint8
	Status   int
	Code     string
	Err      error
}

const (
	TransportStatus  = "UPSTREAM_STATUS"
	TransportNetwork = "NETWORK"
	TransportTimeout = "TIMEOUT"
	TransportTooBig  = "TOO_LARGE"
)

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("provider %d: %s", e.Provider, e.Code)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Stage names the pipeline step a failure originated in.
type Stage string

const (
	StageToken   Stage = "token"
	StageFetch   Stage = "fetch"
	StageDecrypt Stage = "decrypt"
	StageDecode  Stage = "decode"
	StageSchema  Stage = "schema"
)

type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

var (
	ErrMalformedToken    = &FormatError{Kind: FormatMalformedToken}
	ErrBadKeyLength      = &FormatError{Kind: FormatBadKeyLength}
	ErrUnknownProvider   = &FormatError{Kind: FormatUnknownProvider}
	ErrMalformedWireData = &FormatError{Kind: FormatMalformedWireData}
	ErrSchemaMismatch    = &FormatError{Kind: FormatSchemaMismatch}
	ErrInvalidCiphertext = &CryptoError{Kind: CryptoInvalidCiphertext}
	ErrInvalidKey        = &CryptoError{Kind: CryptoInvalidKey}
)

// StageOf reports the pipeline stage carried by err, if any.
func StageOf(err error) (Stage, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage, true
	}
	return "", false
}

// pipelineErr translates a pipeline failure into the API error it is
// rendered as. Each stage keeps its own code so clients can tell a bad
// shortcode from a failed decrypt.
func pipelineErr(pe *PipelineError) *Err {
	var fe *FormatError
	var te *TransportError
	switch {
	case errors.As(pe.Err, &fe) && fe.Kind == FormatUnknownProvider:
		return NewErr("UNKNOWN_PROVIDER", fe.Error(), http.StatusBadRequest)
	case errors.As(pe.Err, &te):
		switch {
		case te.Status == http.StatusNotFound:
			return NewErr("PASTE_NOT_FOUND", "paste not found at provider", http.StatusNotFound)
		case te.Code == TransportTimeout:
			return NewErr("FETCH_TIMEOUT", "timed out fetching paste", http.StatusGatewayTimeout)
		}
		return NewErr("FETCH_FAILED", te.Error(), http.StatusBadGateway)
	}
	switch pe.Stage {
	case StageToken:
		return NewErr("BAD_TOKEN", pe.Err.Error(), http.StatusBadRequest)
	case StageFetch:
		return NewErr("FETCH_FAILED", pe.Err.Error(), http.StatusBadGateway)
	case StageDecrypt:
		return NewErr("DECRYPT_FAILED", "snapshot could not be decrypted", http.StatusUnprocessableEntity)
	case StageDecode:
		return NewErr("MALFORMED_PAYLOAD", pe.Err.Error(), http.StatusUnprocessableEntity)
	case StageSchema:
		return NewErr("SCHEMA_MISMATCH", pe.Err.Error(), http.StatusUnprocessableEntity)
	}
	return ErrInternalServer
}

func asErr(err error) (*Err, Stage) {
	if e, ok := err.(*Err); ok {
		return e, ""
	}
	if e, ok := pkgerrors.Cause(err).(*Err); ok {
		return e, ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pipelineErr(pe), pe.Stage
	}
	return nil, ""
}

func ToResp(err error) ErrResp {
	if e, stage := asErr(err); e != nil {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg, Stage: string(stage)}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}

func Status(err error) int {
	if e, _ := asErr(err); e != nil {
		return e.Status
	}
	return http.StatusInternalServerError
}
