package match

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical unit", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"identical scaled", []float32{2, 0, 0}, []float32{5, 0, 0}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"zero left", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"zero right", []float32{1, 1}, []float32{0, 0}, 0.0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"both empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosineSymmetry(t *testing.T) {
	a := []float32{0.3, -0.5, 0.8, 0.1}
	b := []float32{-0.2, 0.9, 0.4, -0.7}

	if got, want := Cosine(a, b), Cosine(b, a); got != want {
		t.Errorf("Cosine not symmetric: %v vs %v", got, want)
	}
}

func TestCosineBounds(t *testing.T) {
	a := []float32{0.12, -3.4, 2.2, 0.01, -1.5}
	b := []float32{-0.8, 1.1, 0.0, 4.2, 0.33}

	got := Cosine(a, b)
	if got < -1.0-1e-9 || got > 1.0+1e-9 {
		t.Errorf("Cosine(a, b) = %v, outside [-1, 1]", got)
	}
}

func TestBestMatch(t *testing.T) {
	probe := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},   // orthogonal
		{1, 1},   // ~0.707
		{1, 0.1}, // closest
		{-1, 0},  // opposite
	}

	idx, sim := BestMatch(probe, candidates)
	if idx != 2 {
		t.Errorf("BestMatch index = %d, want 2", idx)
	}
	if sim <= 0.9 {
		t.Errorf("BestMatch similarity = %v, want > 0.9", sim)
	}
}

func TestBestMatchEmpty(t *testing.T) {
	idx, sim := BestMatch([]float32{1, 0}, nil)
	if idx != -1 {
		t.Errorf("BestMatch index = %d, want -1", idx)
	}
	if sim != 0.0 {
		t.Errorf("BestMatch similarity = %v, want 0.0", sim)
	}
}

func TestBestMatchNegativeOnly(t *testing.T) {
	probe := []float32{1, 0}
	candidates := [][]float32{{-1, 0}, {-1, -0.1}}

	idx, sim := BestMatch(probe, candidates)
	if idx == -1 {
		t.Fatal("BestMatch returned -1 for non-empty candidates")
	}
	if sim >= 0 {
		t.Errorf("BestMatch similarity = %v, want negative", sim)
	}
}
