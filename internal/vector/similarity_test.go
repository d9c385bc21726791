package vector

import (
	"errors"
	"math"
	"testing"
)

func TestInnerProduct(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{[]float32{1}, []float32{1, 2}, 0},
		{nil, nil, 0},
	}
	for _, tt := range tests {
		if got := InnerProduct(tt.a, tt.b); got != tt.want {
			t.Errorf("InnerProduct(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	in := []float32{3, 4}
	out, err := Normalize(in)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(float64(out[0]), 0.6) || !approxEqual(float64(out[1]), 0.8) {
		t.Errorf("Normalize = %v, want [0.6 0.8]", out)
	}
	if in[0] != 3 {
		t.Error("Normalize must not modify its input")
	}

	for _, bad := range [][]float32{{0, 0}, {}, {float32(math.Inf(1)), 1}} {
		if _, err := Normalize(bad); !errors.Is(err, ErrDegenerateVector) {
			t.Errorf("Normalize(%v) error = %v, want ErrDegenerateVector", bad, err)
		}
	}
}

func TestClampScore(t *testing.T) {
	if clampScore(1.0000001) != 1 || clampScore(-1.5) != -1 || clampScore(0.25) != 0.25 {
		t.Error("clampScore should clamp to [-1, 1]")
	}
}
