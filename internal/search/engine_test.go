package search

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/vector"
)

// fixedEmbedder maps text to preset vectors.
type fixedEmbedder struct {
	text map[string][]float32
	dim  int
}

func (f *fixedEmbedder) EmbedImage(context.Context, string) ([]float32, error) {
	return nil, errors.New("not used")
}

func (f *fixedEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	v, ok := f.text[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func (f *fixedEmbedder) Dimensions() int { return f.dim }
func (f *fixedEmbedder) Close() error    { return nil }

func writeIndex(t *testing.T) string {
	t.Helper()
	idx, err := vector.New(2)
	if err != nil {
		t.Fatal(err)
	}
	err = idx.Add(context.Background(),
		[]string{"imgs/a.png", "imgs/b.png", "imgs/c.png"},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "img_index.kgm")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func testEmbedder() *fixedEmbedder {
	return &fixedEmbedder{dim: 2, text: map[string][]float32{
		"red":   {1, 0},
		"blue":  {0, 1},
		"zero":  {0, 0},
		"three": {1, 0, 0},
	}}
}

func TestEngine_Query(t *testing.T) {
	engine := NewEngine(testEmbedder(), writeIndex(t))
	matches, err := engine.Query(context.Background(), "red", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "imgs/a.png" || math.Abs(matches[0].Score-1) > 1e-6 {
		t.Errorf("matches[0] = %+v", matches[0])
	}
	if matches[1].ID != "imgs/c.png" || math.Abs(matches[1].Score-1/math.Sqrt2) > 1e-6 {
		t.Errorf("matches[1] = %+v", matches[1])
	}
}

func TestEngine_DefaultK(t *testing.T) {
	path := writeIndex(t)
	ctx := context.Background()
	matches, err := NewEngine(testEmbedder(), path, WithDefaultK(1)).Query(ctx, "blue", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "imgs/b.png" {
		t.Errorf("matches = %+v", matches)
	}
	matches, err = NewEngine(testEmbedder(), path).Query(ctx, "blue", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Errorf("default k over 3 images gave %d matches", len(matches))
	}
}

func TestEngine_QueryErrors(t *testing.T) {
	path := writeIndex(t)
	corrupt := filepath.Join(t.TempDir(), "corrupt.kgm")
	if err := os.WriteFile(corrupt, []byte("KGMI garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		indexPath string
		text      string
		k         int
		want      []error
	}{
		{"blank text", path, "  ", 1, []error{ErrEmptyQuery}},
		{"negative k", path, "red", -1, []error{vector.ErrInvalidK}},
		{"missing index", filepath.Join(t.TempDir(), "none.kgm"), "red", 1, []error{ErrIndexUnavailable, vector.ErrNotFound}},
		{"corrupt index", corrupt, "red", 1, []error{ErrIndexUnavailable, vector.ErrCorrupt}},
		{"dimension mismatch", path, "three", 1, []error{vector.ErrDimensionMismatch}},
		{"zero query", path, "zero", 1, []error{vector.ErrDegenerateVector}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(testEmbedder(), tt.indexPath).Query(context.Background(), tt.text, tt.k)
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("err = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestEngine_MissingIndexDoesNotLoadModel(t *testing.T) {
	loads := 0
	lazy := embedding.NewLazy(func() (embedding.Embedder, error) {
		loads++
		return testEmbedder(), nil
	}, 2)
	engine := NewEngine(lazy, filepath.Join(t.TempDir(), "none.kgm"))
	if _, err := engine.Query(context.Background(), "red", 1); !errors.Is(err, vector.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if loads != 0 || lazy.Initialized() {
		t.Errorf("model loaded %d times for a missing index", loads)
	}
}

func TestEngine_Respond(t *testing.T) {
	resp, err := NewEngine(testEmbedder(), writeIndex(t)).Respond(context.Background(), "blue", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Query != "blue" || resp.K != defaultK {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d", i, r.Rank)
		}
	}
	if resp.Results[0].Path != "imgs/b.png" {
		t.Errorf("top result = %s, want imgs/b.png", resp.Results[0].Path)
	}
}
