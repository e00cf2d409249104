package svc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"raisu/cfg"
	"raisu/pkg/domain"
	"raisu/pkg/envelope"
	"raisu/pkg/kms"
	"raisu/pkg/pipeline"
	"raisu/pkg/shortcode"
	"raisu/pkg/wire"
	"raisu/svc/auth"
	"raisu/svc/util"
)

type memStore struct {
	mu     sync.Mutex
	pastes map[string]*domain.Paste
	views  map[string]int
}

func newMemStore() *memStore {
	return &memStore{pastes: map[string]*domain.Paste{}, views: map[string]int{}}
}

func (m *memStore) Create(_ context.Context, p *domain.Paste) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pastes[p.ID]; ok {
		return errors.New("duplicate id")
	}
	cp := *p
	m.pastes[p.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.Paste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pastes[id]
	if !ok {
		return nil, domain.ErrPasteNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pastes[id]; !ok {
		return domain.ErrPasteNotFound
	}
	delete(m.pastes, id)
	return nil
}

func (m *memStore) IncrViews(_ context.Context, id string) error {
	m.mu.Lock()
	m.views[id]++
	m.mu.Unlock()
	return nil
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pastes[id]
	return ok, nil
}

func (m *memStore) CleanupExpired(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, p := range m.pastes {
		if time.Now().After(p.ExpiresAt) {
			delete(m.pastes, id)
			n++
		}
	}
	return n, nil
}

// prefixProvider "wraps" by prefixing a digest of the context.
type prefixProvider struct{}

func (prefixProvider) EncryptWithContext(_ context.Context, data, aad []byte) ([]byte, error) {
	sum := sha256.Sum256(aad)
	return append(sum[:8:8], data...), nil
}

func (prefixProvider) DecryptWithContext(_ context.Context, data, aad []byte) ([]byte, error) {
	sum := sha256.Sum256(aad)
	if len(data) < 8 || !bytes.Equal(data[:8], sum[:8]) {
		return nil, errors.New("context mismatch")
	}
	return append([]byte(nil), data[8:]...), nil
}

func (prefixProvider) GetSecret(context.Context, string) (string, error) { return "", errors.New("none") }

type evictRecorder struct{ keys []string }

func (e *evictRecorder) Delete(key string) { e.keys = append(e.keys, key) }

func secret32() []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func newPasteService(t *testing.T) (*Paste, *memStore) {
	t.Helper()
	h, err := auth.NewHasher(1, 1024, 1, secret32())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Start(1); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Stop)
	tokens, err := util.NewDeletionTokens(secret32(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	store := newMemStore()
	c := &cfg.Cfg{
		MaxPasteSize:        4096,
		MaxWorkerLoad:       10,
		WorkerPoolSize:      1,
		DeletionTokenExpiry: time.Hour,
		DEKCacheTTL:         time.Minute,
	}
	p, err := NewPaste(store, h, tokens, kms.NewAdapterWith(prefixProvider{}, nil, true), c)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Shutdown)
	return p, store
}

func sealed(t *testing.T) string {
	t.Helper()
	text, err := envelope.Seal([]byte("payload"), bytes.Repeat([]byte{7}, 16))
	if err != nil {
		t.Fatal(err)
	}
	return text
}

func TestPaste_CreateGetDelete(t *testing.T) {
	p, store := newPasteService(t)
	local := &evictRecorder{}
	p.SetEvicters(local, nil)
	ctx := context.Background()
	env := sealed(t)

	created, token, err := p.Create(ctx, domain.CreateParams{Envelope: env, ClientIPHash: "hmac-sha256:1:aa"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(created.ID) != util.IDLength || token == "" {
		t.Fatalf("Create() = %+v, %q", created, token)
	}
	if got := created.ExpiresAt.Sub(created.CreatedAt); got != DefaultDuration {
		t.Fatalf("lifetime = %v, want %v", got, DefaultDuration)
	}
	stored := store.pastes[created.ID]
	if bytes.Contains(stored.SealedBlob, []byte(env)) || stored.DeletionTokenHash == token {
		t.Fatal("paste stored in the clear")
	}

	got, err := p.Get(ctx, created.ID)
	if err != nil || got.Envelope != env {
		t.Fatalf("Get() = %+v, %v", got, err)
	}

	if err := p.Delete(ctx, created.ID, "bogus"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Delete(bogus) = %v", err)
	}
	if err := p.Delete(ctx, created.ID, token); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := p.Get(ctx, created.ID); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
	if len(local.keys) != 1 {
		t.Fatalf("evicted %v", local.keys)
	}
}

func TestPaste_CreateValidation(t *testing.T) {
	p, _ := newPasteService(t)
	tests := []struct {
		name   string
		params domain.CreateParams
		want   error
	}{
		{"empty", domain.CreateParams{}, domain.ErrContentRequired},
		{"plaintext", domain.CreateParams{Envelope: "hello world"}, domain.ErrInvalidEnvelope},
		{"too large", domain.CreateParams{Envelope: string(bytes.Repeat([]byte("A"), 5000))}, domain.ErrPasteTooLarge},
		{"too short", domain.CreateParams{Envelope: sealed(t), Duration: time.Second}, domain.ErrInvalidDuration},
		{"too long", domain.CreateParams{Envelope: sealed(t), Duration: 31 * 24 * time.Hour}, domain.ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := p.Create(context.Background(), tt.params); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPaste_TokenBoundToPaste(t *testing.T) {
	p, _ := newPasteService(t)
	ctx := context.Background()
	a, _, err := p.Create(ctx, domain.CreateParams{Envelope: sealed(t)})
	if err != nil {
		t.Fatal(err)
	}
	_, tokenB, err := p.Create(ctx, domain.CreateParams{Envelope: sealed(t)})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Delete(ctx, a.ID, tokenB); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("cross-paste delete = %v", err)
	}
}

func TestPaste_ExpiredIsNotFound(t *testing.T) {
	p, store := newPasteService(t)
	ctx := context.Background()
	created, _, err := p.Create(ctx, domain.CreateParams{Envelope: sealed(t), Duration: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	store.pastes[created.ID].ExpiresAt = time.Now().Add(-time.Second)
	store.mu.Unlock()
	if _, err := p.Get(ctx, created.ID); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("Get(expired) = %v", err)
	}
	if n := prune(ctx, store); n != 1 {
		t.Fatalf("prune() = %d", n)
	}
}

func TestPaste_ShutdownRefusesWork(t *testing.T) {
	p, _ := newPasteService(t)
	p.Shutdown()
	if _, _, err := p.Create(context.Background(), domain.CreateParams{Envelope: sealed(t)}); err == nil {
		t.Fatal("Create after shutdown succeeded")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in      time.Duration
		want    time.Duration
		wantErr bool
	}{
		{0, DefaultDuration, false},
		{time.Minute, time.Minute, false},
		{MaxDuration, MaxDuration, false},
		{59 * time.Second, 0, true},
		{MaxDuration + 1, 0, true},
	}
	for _, tt := range tests {
		got, err := Duration(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("Duration(%v) = %v, %v", tt.in, got, err)
		}
	}
}

func snapshotEnvelope(t *testing.T, key []byte, version int64) string {
	t.Helper()
	comp := wire.NewObject(2)
	comp.Set("type", "SHINY_NEW_WIDGET")
	comp.Set("data", wire.NewObject(0))
	cat := wire.NewObject(4)
	cat.Set("id", "misc")
	cat.Set("name", "Misc")
	cat.Set("icon", "")
	cat.Set("components", []any{comp})
	doc := wire.NewObject(2)
	doc.Set("version", version)
	doc.Set("categories", []any{cat})
	b, err := wire.Encode(doc, wire.Msgpack)
	if err != nil {
		t.Fatal(err)
	}
	text, err := envelope.Seal(b, key)
	if err != nil {
		t.Fatal(err)
	}
	return text
}

func TestViewer_Load(t *testing.T) {
	key := bytes.Repeat([]byte{3}, 16)
	env := snapshotEnvelope(t, key, 9)
	f := pipeline.FetcherFunc(func(context.Context, uint8, string) (string, error) { return env, nil })
	v := NewViewer(f, pipeline.Options{}, time.Second)

	if _, err := v.Load(context.Background(), ""); !errors.Is(err, domain.ErrCodeRequired) {
		t.Fatalf("empty code = %v", err)
	}
	code, err := shortcode.Encode(1, "k", key)
	if err != nil {
		t.Fatal(err)
	}
	res, err := v.Load(context.Background(), code)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.ProviderID != 1 || len(res.Snapshot.Categories) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("warnings = %v, want unknown version and unknown type", res.Warnings)
	}

	if _, err := v.Load(context.Background(), "not a code!"); err == nil {
		t.Fatal("bad code accepted")
	} else if stage, _ := domain.StageOf(err); stage != domain.StageToken {
		t.Fatalf("stage = %q", stage)
	}
}
