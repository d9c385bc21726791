package embedding

import (
	"context"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/kagami/internal/config"
)

func TestMockEmbedder_Text(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	a, err := e.EmbedText(ctx, "a red car")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 8 {
		t.Fatalf("len=%d, want 8", len(a))
	}
	again, _ := e.EmbedText(ctx, "a red car")
	if !reflect.DeepEqual(a, again) {
		t.Error("embedding not deterministic")
	}
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-4 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
	if _, err := e.EmbedText(ctx, "   "); err == nil {
		t.Error("expected error for blank text")
	}
}

func TestMockEmbedder_Image(t *testing.T) {
	dir := t.TempDir()
	red := filepath.Join(dir, "red.png")
	blue := filepath.Join(dir, "blue.png")
	writePNG(t, red, solidImage(8, 8, color.RGBA{255, 0, 0, 255}))
	writePNG(t, blue, solidImage(8, 8, color.RGBA{0, 0, 255, 255}))

	e := NewMockEmbedder(16)
	ctx := context.Background()
	r1, err := e.EmbedImage(ctx, red)
	if err != nil {
		t.Fatal(err)
	}
	r2, _ := e.EmbedImage(ctx, red)
	b, err := e.EmbedImage(ctx, blue)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Error("same image gave different embeddings")
	}
	if reflect.DeepEqual(r1, b) {
		t.Error("different images gave identical embeddings")
	}

	garbage := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(garbage, []byte{0, 1, 2, 3}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := e.EmbedImage(ctx, garbage); err == nil {
		t.Error("expected error for undecodable image")
	}
}

func TestMockEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).EmbedText(ctx, "x"); err == nil {
		t.Error("expected context error")
	}
}

func TestNew_Providers(t *testing.T) {
	if _, err := New(&config.EmbeddingConfig{Provider: "bogus"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	e, err := New(&config.EmbeddingConfig{Provider: ProviderMock, Dimensions: 32})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions=%d, want 32", e.Dimensions())
	}
}

func BenchmarkMockEmbedder_EmbedText(b *testing.B) {
	e := NewMockEmbedder(512)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedText(ctx, "benchmark query text for embedding")
	}
}
