package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRU_GetSet(t *testing.T) {
	l, err := NewLRU(2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	l.Set(ctx, "a", "env-a", time.Minute)
	if got, ok := l.Get(ctx, "a"); !ok || got != "env-a" {
		t.Fatalf("Get(a) = %q, %v", got, ok)
	}
	l.Set(ctx, "b", "env-b", time.Minute)
	l.Set(ctx, "c", "env-c", time.Minute)
	if _, ok := l.Get(ctx, "b"); ok {
		t.Fatal("least recently used entry survived eviction")
	}
	l.Delete("a")
	if _, ok := l.Get(ctx, "a"); ok {
		t.Fatal("deleted entry returned")
	}
}

func TestLRU_Expiry(t *testing.T) {
	l, _ := NewLRU(10)
	ctx := context.Background()
	base := time.Now()
	l.now = func() time.Time { return base }
	l.Set(ctx, "k", "v", time.Second)
	l.Set(ctx, "zero", "v", 0)
	l.now = func() time.Time { return base.Add(2 * time.Second) }
	if _, ok := l.Get(ctx, "k"); ok {
		t.Fatal("expired entry returned")
	}
	if l.Len() != 0 {
		t.Fatalf("Len() = %d", l.Len())
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	l.now = time.Now
	l.Set(ctx, "k", "v", time.Minute)
	if _, ok := l.Get(cancelled, "k"); ok {
		t.Fatal("Get ignored a cancelled context")
	}
}

func TestNewLRU_Bounds(t *testing.T) {
	for _, n := range []int{0, -1, 100001} {
		if _, err := NewLRU(n); err == nil {
			t.Errorf("NewLRU(%d) accepted", n)
		}
	}
	if _, err := NewLRU(100000); err != nil {
		t.Errorf("NewLRU(100000) = %v", err)
	}
}
