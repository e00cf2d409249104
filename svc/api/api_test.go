package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raisu/cfg"
	"raisu/pkg/domain"
	"raisu/pkg/pipeline"
	"raisu/pkg/schema"
	"raisu/svc/lim"
)

type fakeViewer struct {
	res *pipeline.Result
	err error
}

func (f *fakeViewer) Load(_ context.Context, code string) (*pipeline.Result, error) {
	if code == "" {
		return nil, domain.ErrCodeRequired
	}
	return f.res, f.err
}

type fakePaste struct {
	pastes map[string]string
	token  string
	params domain.CreateParams
}

func (f *fakePaste) Create(_ context.Context, p domain.CreateParams) (*domain.Paste, string, error) {
	if p.Duration < 0 {
		return nil, "", domain.ErrInvalidDuration
	}
	f.params = p
	f.pastes["AbCdEfGh12"] = p.Envelope
	return &domain.Paste{ID: "AbCdEfGh12", ExpiresAt: time.Now().Add(time.Hour)}, f.token, nil
}

func (f *fakePaste) Get(_ context.Context, id string) (*domain.Paste, error) {
	env, ok := f.pastes[id]
	if !ok {
		return nil, domain.ErrPasteNotFound
	}
	return &domain.Paste{ID: id, Envelope: env}, nil
}

func (f *fakePaste) Delete(_ context.Context, id, token string) error {
	if _, ok := f.pastes[id]; !ok {
		return domain.ErrPasteNotFound
	}
	if token != f.token {
		return domain.ErrUnauthorized
	}
	delete(f.pastes, id)
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type staticHasher struct{}

func (staticHasher) Hash(ip string) (string, error) { return "hmac-sha256:1:" + ip, nil }

func testCfg() *cfg.Cfg {
	return &cfg.Cfg{
		Port:           "0",
		ContextTimeout: time.Second,
		SnapshotMaxAge: 30 * time.Second,
		MaxPasteSize:   1024,
		TTLPresets:     []time.Duration{10 * time.Minute, time.Hour},
		AllowedOrigins: []string{"https://viewer.example"},
	}
}

func snapshotResult() *pipeline.Result {
	return &pipeline.Result{
		Snapshot: &domain.Snapshot{
			SchemaVersion: 2,
			CapturedAt:    1700000000000,
			ServerLabel:   "Paper 1.21.4",
			RuntimeLabel:  "21.0.5",
			Categories: []domain.Category{{
				ID: "status", Name: "Status", DisplayName: "Status", Icon: ":lucide:activity",
				Components: domain.Components{&domain.Badge{Text: "Online", Severity: domain.SeveritySuccess}},
			}},
		},
		Warnings: []schema.Warning{{Kind: schema.WarnUnknownType, Path: "categories[0].components[1]", Message: "skipped"}},
	}
}

func newTestServer(d Deps) *Server {
	if d.Viewer == nil {
		d.Viewer = &fakeViewer{res: snapshotResult()}
	}
	return NewServer(testCfg(), d)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp domain.ErrResp
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestSnapshot_OK(t *testing.T) {
	s := newTestServer(Deps{})
	rec := do(t, s, httptest.NewRequest("GET", "/api/snapshot?code=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=30" {
		t.Fatalf("Cache-Control = %q", got)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"version", "timestamp", "serverVersion", "javaVersion", "categories", "warnings"} {
		if _, ok := body[k]; !ok {
			t.Errorf("response missing %q: %s", k, rec.Body)
		}
	}
	if !strings.Contains(string(body["categories"]), `"type":"BADGE"`) {
		t.Fatalf("categories = %s", body["categories"])
	}
}

func TestSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
		code   string
	}{
		{"missing code", "/api/snapshot", nil, 400, "CODE_REQUIRED"},
		{"bad token", "/api/snapshot?code=x", &domain.PipelineError{Stage: domain.StageToken, Err: domain.ErrMalformedToken}, 400, "BAD_TOKEN"},
		{"upstream 404", "/api/snapshot?code=x", &domain.PipelineError{Stage: domain.StageFetch, Err: &domain.TransportError{Status: 404, Code: domain.TransportStatus}}, 404, "PASTE_NOT_FOUND"},
		{"upstream down", "/api/snapshot?code=x", &domain.PipelineError{Stage: domain.StageFetch, Err: &domain.TransportError{Code: domain.TransportNetwork}}, 502, "FETCH_FAILED"},
		{"decrypt", "/api/snapshot?code=x", &domain.PipelineError{Stage: domain.StageDecrypt, Err: domain.ErrInvalidCiphertext}, 422, "DECRYPT_FAILED"},
		{"schema", "/api/snapshot?code=x", &domain.PipelineError{Stage: domain.StageSchema, Err: domain.ErrSchemaMismatch}, 422, "SCHEMA_MISMATCH"},
		{"unexpected", "/api/snapshot?code=x", errors.New("boom"), 500, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Deps{Viewer: &fakeViewer{err: tt.err}})
			rec := do(t, s, httptest.NewRequest("GET", tt.url, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestPastes_Lifecycle(t *testing.T) {
	fp := &fakePaste{pastes: map[string]string{}, token: "tok"}
	s := newTestServer(Deps{Paste: fp, Hasher: staticHasher{}})

	req := httptest.NewRequest("POST", "/pastes", strings.NewReader(`{"content":" QUJDREVGR0g= ","duration":"1h"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, s, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var created CreateResp
	json.NewDecoder(rec.Body).Decode(&created)
	if created.ID != "AbCdEfGh12" || created.DeletionToken != "tok" {
		t.Fatalf("created = %+v", created)
	}
	if fp.params.Envelope != "QUJDREVGR0g=" || fp.params.Duration != time.Hour || fp.params.ClientIPHash == "" {
		t.Fatalf("params = %+v", fp.params)
	}

	rec = do(t, s, httptest.NewRequest("GET", "/pastes/AbCdEfGh12", nil))
	if rec.Code != 200 || rec.Body.String() != "QUJDREVGR0g=" {
		t.Fatalf("get = %d %q", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q", ct)
	}

	rec = do(t, s, httptest.NewRequest("DELETE", "/pastes/AbCdEfGh12", nil))
	if rec.Code != 400 || errCode(t, rec) != "TOKEN_REQUIRED" {
		t.Fatalf("delete without token = %d", rec.Code)
	}
	del := httptest.NewRequest("DELETE", "/pastes/AbCdEfGh12", nil)
	del.Header.Set("X-Deletion-Token", "wrong")
	if rec = do(t, s, del); rec.Code != 401 {
		t.Fatalf("delete with wrong token = %d", rec.Code)
	}
	del.Header.Set("X-Deletion-Token", "tok")
	if rec = do(t, s, del); rec.Code != 200 {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec = do(t, s, httptest.NewRequest("GET", "/pastes/AbCdEfGh12", nil)); rec.Code != 404 {
		t.Fatalf("get after delete = %d", rec.Code)
	}
}

func TestCreatePaste_Rejects(t *testing.T) {
	s := newTestServer(Deps{Paste: &fakePaste{pastes: map[string]string{}}})
	tests := []struct {
		name   string
		ct     string
		body   string
		status int
	}{
		{"not json", "text/plain", `{"content":"x"}`, 415},
		{"bad json", "application/json", `{`, 400},
		{"unknown field", "application/json", `{"content":"x","password":"p"}`, 400},
		{"bad duration", "application/json", `{"content":"x","duration":"forever"}`, 400},
		{"too large", "application/json", `{"content":"` + strings.Repeat("A", 8000) + `"}`, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/pastes", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.ct)
			if rec := do(t, s, req); rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestPasteRoutesOptional(t *testing.T) {
	s := newTestServer(Deps{})
	if rec := do(t, s, httptest.NewRequest("GET", "/pastes/AbCdEfGh12", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPresets(t *testing.T) {
	s := newTestServer(Deps{Paste: &fakePaste{pastes: map[string]string{}}})
	rec := do(t, s, httptest.NewRequest("GET", "/config/presets", nil))
	if rec.Code != 200 || strings.TrimSpace(rec.Body.String()) != `["10m0s","1h0m0s"]` {
		t.Fatalf("presets = %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(Deps{DB: pinger{}, Cache: pinger{err: errors.New("down")}})
	if rec := do(t, s, httptest.NewRequest("GET", "/health", nil)); rec.Code != 200 {
		t.Fatalf("health = %d", rec.Code)
	}
	rec := do(t, s, httptest.NewRequest("GET", "/ready", nil))
	var ready ReadyResponse
	json.NewDecoder(rec.Body).Decode(&ready)
	if rec.Code != 200 || !ready.Ready || !ready.Degraded || ready.Cache != "down" {
		t.Fatalf("ready = %d %+v", rec.Code, ready)
	}

	s = newTestServer(Deps{DB: pinger{err: errors.New("locked")}})
	if rec := do(t, s, httptest.NewRequest("GET", "/ready", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with db down = %d", rec.Code)
	}
}

func TestMetricsBasicAuth(t *testing.T) {
	c := testCfg()
	c.MetricsUser = "prom"
	c.MetricsPass = cfg.NewSecret("scrape")
	s := NewServer(c, Deps{Viewer: &fakeViewer{}})
	if rec := do(t, s, httptest.NewRequest("GET", "/metrics", nil)); rec.Code != 401 {
		t.Fatalf("no auth = %d", rec.Code)
	}
	req := httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("prom", "scrape")
	if rec := do(t, s, req); rec.Code != 200 {
		t.Fatalf("with auth = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	l, err := lim.New(lim.Options{RPM: 1, Burst: 1, ConservativeLimit: 1}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	s := newTestServer(Deps{Limiter: l})
	if rec := do(t, s, httptest.NewRequest("GET", "/api/snapshot?code=a", nil)); rec.Code != 200 {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do(t, s, httptest.NewRequest("GET", "/api/snapshot?code=a", nil))
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second = %d", rec.Code)
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	s := newTestServer(Deps{})
	req := httptest.NewRequest("GET", "/api/snapshot?code=a", nil)
	req.Header.Set("X-Request-ID", "client-req-0001")
	req.Header.Set("Origin", "https://viewer.example")
	rec := do(t, s, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-req-0001" {
		t.Fatalf("X-Request-ID = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://viewer.example" {
		t.Fatalf("ACAO = %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/api/snapshot", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = do(t, s, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("preflight = %d %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
