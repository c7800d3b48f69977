package common

import (
	"math"
	"testing"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want float64
	}{
		{"empty", nil, 0},
		{"odd", []float64{3, 1, 2}, 2},
		{"even averages middles", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.data); got != tt.want {
				t.Errorf("Median(%v) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	data := []float64{5, 1, 4}
	Median(data)
	if data[0] != 5 || data[1] != 1 || data[2] != 4 {
		t.Fatalf("input modified: %v", data)
	}
}

func TestRootMean(t *testing.T) {
	got := RootMean([]float64{0.25, 0.25, 0.25, 0.25})
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("RootMean = %v, want 0.5", got)
	}
	if RootMean(nil) != 0 {
		t.Errorf("RootMean(nil) should be 0")
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(-2, 2, 5)
	want := []float64{-2, -1, 0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Linspace[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if one := Linspace(3, 9, 1); len(one) != 1 || one[0] != 3 {
		t.Errorf("Linspace n=1 = %v", one)
	}
}

func TestLowerBound(t *testing.T) {
	sorted := []float64{0, 0, 0.001, 0.5, 0.5, 1}
	tests := []struct {
		ref  float64
		want int
	}{
		{-1, 0},
		{0, 0},
		{0.0005, 2},
		{0.001, 2},
		{0.5, 3},
		{0.7, 5},
		{2, 6},
	}

	for _, tt := range tests {
		if got := LowerBound(sorted, tt.ref); got != tt.want {
			t.Errorf("LowerBound(%v) = %d, want %d", tt.ref, got, tt.want)
		}
	}
}

func TestAbsAndMax(t *testing.T) {
	abs := Abs([]float64{-0.5, 0.25, -1})
	if abs[0] != 0.5 || abs[1] != 0.25 || abs[2] != 1 {
		t.Fatalf("Abs = %v", abs)
	}
	if Max(abs) != 1 {
		t.Errorf("Max = %v, want 1", Max(abs))
	}
	if Clamp(-1, 0, 5) != 0 || Clamp(9, 0, 5) != 5 || Clamp(3, 0, 5) != 3 {
		t.Errorf("Clamp out of range")
	}
}
