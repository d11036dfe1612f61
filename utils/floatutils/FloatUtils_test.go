package floatutils

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestClip(t *testing.T) {
	tests := []struct {
		in, min, max, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-2, 0, 1, 0},
		{3, 0, 1, 1},
		{1, 1, 1, 1},
	}
	for _, test := range tests {
		if got := Clip(test.in, test.min, test.max); got != test.want {
			t.Errorf("Clip(%v, %v, %v) = %v, want %v", test.in, test.min,
				test.max, got, test.want)
		}
	}

	if got := ClipSymmetric(-12, 10); got != -10 {
		t.Errorf("ClipSymmetric: got %v, want -10", got)
	}
}

func TestClipVec(t *testing.T) {
	v := mat.NewVecDense(3, []float64{0, 2, -1})
	lo := mat.NewVecDense(3, []float64{0.6, 0.6, 0.6})
	hi := mat.NewVecDense(3, []float64{1.6, 1.6, 1.6})
	ClipVec(v, lo, hi)

	want := []float64{0.6, 1.6, 0.6}
	for i, w := range want {
		if v.AtVec(i) != w {
			t.Errorf("element %d: got %v, want %v", i, v.AtVec(i), w)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on length mismatch")
		}
	}()
	ClipVec(v, mat.NewVecDense(1, nil), hi)
}
