package cache_test

import (
	"testing"
	"time"

	"github.com/gfmeira/gestor/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_SliceValues(t *testing.T) {
	c := cache.New[[]map[string]any](5 * time.Minute)

	records := []map[string]any{{"id": "p1"}, {"id": "p2"}}
	c.Set("entity:Product", records)

	got, ok := c.Get("entity:Product")
	if !ok {
		t.Fatal("expected cached slice")
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}
