package fileid

import (
	"strings"
	"testing"
)

func TestImageID(t *testing.T) {
	id1 := ImageID("/photos/cat.png")
	id2 := ImageID("/photos/cat.png")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	if len(id1) != len(prefix)+64 {
		t.Errorf("ID length = %d, want %d", len(id1), len(prefix)+64)
	}
}

func TestImageID_differentPaths(t *testing.T) {
	if ImageID("/photos/cat.png") == ImageID("/photos/dog.png") {
		t.Error("different paths should give different IDs")
	}
}

func TestImageID_normalized(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"/photos/cat.png", "/photos/./cat.png"},
		{"/photos/cat.png", "/photos/x/../cat.png"},
		{"imgs/a.jpg", "imgs//a.jpg"},
	}
	for _, tt := range tests {
		if ImageID(tt.a) != ImageID(tt.b) {
			t.Errorf("%q and %q should normalize to the same ID", tt.a, tt.b)
		}
	}
}
