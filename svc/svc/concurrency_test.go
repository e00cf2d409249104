package svc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"raisu/pkg/domain"
)

func TestPaste_ConcurrentCreateUniqueIDs(t *testing.T) {
	p, _ := newPasteService(t)
	env := sealed(t)
	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, _, err := p.Create(context.Background(), domain.CreateParams{Envelope: env})
			if err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			ids[i] = created.ID
		}(i)
	}
	wg.Wait()
	seen := make(map[string]bool, n)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestPaste_ConcurrentDeleteSucceedsOnce(t *testing.T) {
	p, _ := newPasteService(t)
	ctx := context.Background()
	created, token, err := p.Create(ctx, domain.CreateParams{Envelope: sealed(t)})
	if err != nil {
		t.Fatal(err)
	}
	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Delete(ctx, created.ID, token); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("%d deletes succeeded, want 1", ok)
	}
}

func TestPaste_ConcurrentReads(t *testing.T) {
	p, store := newPasteService(t)
	ctx := context.Background()
	created, _, err := p.Create(ctx, domain.CreateParams{Envelope: sealed(t)})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Get(ctx, created.ID); err != nil {
				t.Errorf("Get() error = %v", err)
			}
		}()
	}
	wg.Wait()
	p.Shutdown()
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.views[created.ID] != 20 {
		t.Fatalf("views = %d, want 20", store.views[created.ID])
	}
}

func TestPaste_ReadsRacingShutdown(t *testing.T) {
	p, store := newPasteService(t)
	ctx := context.Background()
	created, _, err := p.Create(ctx, domain.CreateParams{Envelope: sealed(t)})
	if err != nil {
		t.Fatal(err)
	}
	var served int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 20; j++ {
				_, err := p.Get(ctx, created.ID)
				if errors.Is(err, ErrShuttingDown) {
					return
				}
				if err != nil {
					t.Errorf("Get() error = %v", err)
					return
				}
				atomic.AddInt32(&served, 1)
			}
		}()
	}
	close(start)
	p.Shutdown()
	wg.Wait()

	if _, err := p.Get(ctx, created.ID); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("Get after Shutdown: err = %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if got := int32(store.views[created.ID]); got != served {
		t.Fatalf("views = %d, served = %d", got, served)
	}
}
