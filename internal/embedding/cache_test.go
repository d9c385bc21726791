package embedding

import (
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")               // a is now most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d, want 2", c.Len())
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(1)
	in := []float32{1, 2}
	c.Set("k", in)
	in[0] = 99
	got, _ := c.Get("k")
	got[1] = 42
	again, _ := c.Get("k")
	if again[0] != 1 || again[1] != 2 {
		t.Errorf("cache entry was mutated: %v", again)
	}
}

func TestEmbeddingCache_Disabled(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("a", []float32{1})
	if _, ok := c.Get("a"); ok {
		t.Error("zero-capacity cache should not store entries")
	}
}

func TestEmbeddingCache_TrimmedKeysAndStats(t *testing.T) {
	c := NewEmbeddingCache(4)
	c.Set("  red car\n", []float32{1})
	if _, ok := c.Get("red car"); !ok {
		t.Error("expected hit for trimmed key")
	}
	if _, ok := c.Get("blue car"); ok {
		t.Error("expected miss")
	}
	c.Set("red car", []float32{2})
	got, _ := c.Get(" red car ")
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("overwritten entry = %v, want [2]", got)
	}
	stats := c.Stats()
	if stats.Entries != 1 || stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 entry, 2 hits, 1 miss", stats)
	}
}
