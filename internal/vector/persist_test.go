package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleIndex(t *testing.T) *FlatIndex {
	t.Helper()
	idx, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	err = idx.Add(context.Background(),
		[]string{"imgs/a.png", "imgs/b.jpg", "imgs/ü.gif"},
		[][]float32{{1, 2, 3}, {0, 1, 0}, {-1, 0.5, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	idx := sampleIndex(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "img_index.kgm")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != idx.Size() {
		t.Fatalf("Size=%d, want %d", loaded.Size(), idx.Size())
	}
	if loaded.Dimensions() != 3 {
		t.Errorf("Dimensions=%d, want 3", loaded.Dimensions())
	}
	if !reflect.DeepEqual(loaded.IDs(), idx.IDs()) {
		t.Errorf("IDs=%v, want %v", loaded.IDs(), idx.IDs())
	}
	for i := 0; i < idx.Size(); i++ {
		want, _ := idx.Vector(i)
		got, _ := loaded.Vector(i)
		for j := range want {
			if !approxEqual(float64(got[j]), float64(want[j])) {
				t.Errorf("vector %d component %d = %f, want %f", i, j, got[j], want[j])
			}
		}
	}

	ctx := context.Background()
	before, _ := idx.Search(ctx, []float32{1, 1, 1}, 3)
	after, err := loaded.Search(ctx, []float32{1, 1, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("search after load = %v, want %v", after, before)
	}
}

func TestFlatIndex_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.kgm")
	if err := sampleIndex(t).Save(path); err != nil {
		t.Fatal(err)
	}
	small, _ := New(2)
	_ = small.Add(context.Background(), []string{"only"}, [][]float32{{1, 1}})
	if err := small.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded.IDs(), []string{"only"}) || loaded.Dimensions() != 2 {
		t.Errorf("loaded ids=%v dim=%d, want [only] 2", loaded.IDs(), loaded.Dimensions())
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the index file in dir, got %d entries", len(entries))
	}
}

func TestFlatIndex_SaveEmptyPath(t *testing.T) {
	idx, _ := New(2)
	if err := idx.Save(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.kgm"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	var good bytes.Buffer
	if err := sampleIndex(t).Encode(&good); err != nil {
		t.Fatal(err)
	}
	data := good.Bytes()

	flip := func(off int) []byte {
		b := append([]byte(nil), data...)
		b[off] ^= 0xFF
		return b
	}
	// Vector count lives at offset 12; bump it and the declared ids no longer line up.
	countMismatch := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(countMismatch[12:16], 4)
	// First vector length prefix lives at offset 16.
	badVectorLen := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badVectorLen[16:20], 2)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", flip(0)},
		{"bad version", flip(4)},
		{"truncated header", data[:10]},
		{"truncated body", data[:len(data)-9]},
		{"missing checksum", data[:len(data)-4]},
		{"checksum mismatch", flip(len(data) - 1)},
		{"payload bit flip", flip(30)},
		{"count mismatch", countMismatch},
		{"vector length mismatch", badVectorLen},
		{"trailing data", append(append([]byte(nil), data...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Decode error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDecode_IDCountMismatch(t *testing.T) {
	idx, _ := New(1)
	_ = idx.Add(context.Background(), []string{"a", "b"}, [][]float32{{1}, {2}})
	// Hand-build a file whose id section disagrees with the vector section.
	idx.ids = idx.ids[:1]
	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(&buf); !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.kgm")
	if err := os.WriteFile(path, []byte("not an index"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v, want ErrCorrupt", err)
	}
}

func TestEncodeDecode_EmptyIndex(t *testing.T) {
	idx, _ := New(0)
	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 0 || loaded.Dimensions() != 0 {
		t.Errorf("size=%d dim=%d, want 0 0", loaded.Size(), loaded.Dimensions())
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.kgm")
	if err := sampleIndex(t).Save(path); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.Dimensions != 3 || h.VectorCount != 3 || h.Version != formatVersion {
		t.Errorf("header = %+v", h)
	}
	if _, err := ReadHeader(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing header: got %v, want ErrNotFound", err)
	}
}

func TestSaveLoad_MaxDimensions(t *testing.T) {
	idx, _ := New(0)
	vec := make([]float32, MaxDimensions)
	vec[MaxDimensions-1] = 1
	if err := idx.Add(context.Background(), []string{"wide"}, [][]float32{vec}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "wide.kgm")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Dimensions() != MaxDimensions {
		t.Errorf("Dimensions=%d, want %d", loaded.Dimensions(), MaxDimensions)
	}
}
