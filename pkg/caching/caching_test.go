package caching

import (
	"testing"
	"time"
)

func TestCache(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	const url = "https://lda.gop.pk/page/notifications"

	if _, ok := c.Get(url); ok {
		t.Fatal("Get() hit on empty cache")
	}
	if err := c.Set(url, []byte("<html>listing</html>")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, ok := c.Get(url)
	if !ok || string(data) != "<html>listing</html>" {
		t.Errorf("Get() = %q, %v", data, ok)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := c.Get(url); ok {
		t.Error("Get() hit on expired entry")
	}
	n, err := c.Prune()
	if err != nil || n != 1 {
		t.Errorf("Prune() = %d, %v, want 1", n, err)
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := NewCache(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if err := c.Set("u", []byte("x")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok := c.Get("u"); ok {
		t.Error("Get() hit with caching disabled")
	}
}
