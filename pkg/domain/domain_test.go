package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestFormatError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &FormatError{Kind: FormatBadKeyLength, Msg: "got 15 bytes"})
	if !errors.Is(err, ErrBadKeyLength) {
		t.Fatalf("expected errors.Is to match ErrBadKeyLength")
	}
	if errors.Is(err, ErrMalformedToken) {
		t.Fatalf("kinds must not cross-match")
	}
}

func TestFormatError_MessageCarriesPath(t *testing.T) {
	err := &FormatError{
		Kind: FormatSchemaMismatch,
		Path: "categories[2].components[0].data.current",
		Msg:  "expected float64, found string",
	}
	want := "categories[2].components[0].data.current: expected float64, found string"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestStatus_PipelineStages(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"token", &PipelineError{Stage: StageToken, Err: ErrBadKeyLength}, http.StatusBadRequest, "BAD_TOKEN"},
		{"unknown provider", &PipelineError{Stage: StageFetch, Err: &FormatError{Kind: FormatUnknownProvider}}, http.StatusBadRequest, "UNKNOWN_PROVIDER"},
		{"upstream 404", &PipelineError{Stage: StageFetch, Err: &TransportError{Status: 404, Code: TransportStatus}}, http.StatusNotFound, "PASTE_NOT_FOUND"},
		{"upstream 500", &PipelineError{Stage: StageFetch, Err: &TransportError{Status: 500, Code: TransportStatus}}, http.StatusBadGateway, "FETCH_FAILED"},
		{"timeout", &PipelineError{Stage: StageFetch, Err: &TransportError{Code: TransportTimeout}}, http.StatusGatewayTimeout, "FETCH_TIMEOUT"},
		{"decrypt", &PipelineError{Stage: StageDecrypt, Err: ErrInvalidCiphertext}, http.StatusUnprocessableEntity, "DECRYPT_FAILED"},
		{"decode", &PipelineError{Stage: StageDecode, Err: ErrMalformedWireData}, http.StatusUnprocessableEntity, "MALFORMED_PAYLOAD"},
		{"schema", &PipelineError{Stage: StageSchema, Err: ErrSchemaMismatch}, http.StatusUnprocessableEntity, "SCHEMA_MISMATCH"},
		{"wrapped api error", pkgerrors.Wrap(ErrPasteNotFound, "get"), http.StatusNotFound, "PASTE_NOT_FOUND"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.status {
				t.Errorf("Status() = %d, want %d", got, tt.status)
			}
			if got := ToResp(tt.err).Error.Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestComponents_MarshalJSON(t *testing.T) {
	cs := Components{
		&Badge{Text: "Online", Severity: SeveritySuccess},
		&Panel{Title: "p"},
	}
	b, err := json.Marshal(cs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"type":"BADGE","data":{"text":"Online","severity":"SUCCESS"}},` +
		`{"type":"PANEL","data":{"title":"p","collapsible":false,"collapsed":false,"children":[]}}]`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}
}

func TestDataPoints_KeepOrder(t *testing.T) {
	dp := DataPoints{{"zeta", 1}, {"alpha", 2.5}}
	b, err := json.Marshal(dp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"zeta":1,"alpha":2.5}` {
		t.Fatalf("got %s", b)
	}
	if v, ok := dp.Get("alpha"); !ok || v != 2.5 {
		t.Fatalf("Get(alpha) = %v, %v", v, ok)
	}
}

func TestWalk_CountsNested(t *testing.T) {
	s := &Snapshot{Categories: []Category{{
		Components: Components{
			&Column{Children: Components{
				&Text{Content: "a"},
				&Row{Children: Components{&Text{Content: "b"}}},
			}},
			&Link{URL: "https://example.com"},
		},
	}}}
	if n := s.ComponentCount(); n != 5 {
		t.Fatalf("ComponentCount() = %d, want 5", n)
	}
}

func TestKinds_ContainerFlag(t *testing.T) {
	containers := 0
	for _, k := range Kinds() {
		if k.IsContainer() {
			containers++
		}
	}
	if containers != 4 {
		t.Fatalf("containers = %d, want 4", containers)
	}
	if len(Kinds()) != 21 {
		t.Fatalf("kinds = %d, want 21", len(Kinds()))
	}
}
