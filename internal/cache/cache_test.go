package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInMemoryCacheSetAndGet(t *testing.T) {
	c := NewInMemoryCache(time.Second)
	ctx := context.Background()

	if err := c.Set(ctx, "plan:abc", "cached plan"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "plan:abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "cached plan" {
		t.Errorf("got %v", got)
	}
}

func TestInMemoryCacheMiss(t *testing.T) {
	c := NewInMemoryCache(time.Second)

	_, err := c.Get(context.Background(), "never-set")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestInMemoryCacheExpiration(t *testing.T) {
	c := NewInMemoryCache(30 * time.Millisecond)
	ctx := context.Background()

	if err := c.Set(ctx, "short-lived", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := c.Get(ctx, "short-lived"); err == nil {
		t.Error("expected error for expired item")
	}
}

func TestInMemoryCacheCancelledContext(t *testing.T) {
	c := NewInMemoryCache(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Set(ctx, "k", "v"); err == nil {
		t.Error("Set with a done context must fail")
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get with a done context must fail")
	}
}

func TestInMemoryCacheConcurrency(t *testing.T) {
	c := NewInMemoryCache(time.Second)
	ctx := context.Background()
	setErr := make(chan error, 1)
	getErr := make(chan error, 1)

	go func() {
		setErr <- c.Set(ctx, "concurrent", "val")
	}()
	go func() {
		_, err := c.Get(ctx, "concurrent")
		getErr <- err
	}()

	if err := <-setErr; err != nil {
		t.Errorf("Set failed: %v", err)
	}
	if err := <-getErr; err != nil && !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected Get error: %v", err)
	}
}

func TestFilePersistentCacheReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	ctx := context.Background()

	first := NewFilePersistentCache(time.Hour, path)
	if err := first.Set(ctx, "plan:abc", "serialized plan"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh instance on the same path sees the persisted entry.
	second := NewFilePersistentCache(time.Hour, path)
	got, err := second.Get(ctx, "plan:abc")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if got != "serialized plan" {
		t.Errorf("got %v", got)
	}
}

func TestFilePersistentCacheCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := NewFilePersistentCache(time.Hour, path)
	if _, err := c.Get(context.Background(), "anything"); err == nil {
		t.Error("corrupt state must behave as an empty cache")
	}
	if err := c.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set after discarding corrupt state failed: %v", err)
	}
}
