package solver

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// param is a ValueGrad with a fixed gradient
type param struct {
	value, grad *tensor.Dense
}

func newParam(grad ...float64) param {
	return param{
		value: tensor.New(tensor.WithShape(len(grad)),
			tensor.WithBacking(make([]float64, len(grad)))),
		grad: tensor.New(tensor.WithShape(len(grad)),
			tensor.WithBacking(grad)),
	}
}

func (p param) Value() G.Value          { return p.value }
func (p param) Grad() (G.Value, error) { return p.grad, nil }

func data(p param) []float64 { return p.grad.Data().([]float64) }

func TestClipGradNorm(t *testing.T) {
	a, b := newParam(3, 0), newParam(0, 4)
	norm, err := ClipGradNorm([]G.ValueGrad{a, b}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if norm != 5 {
		t.Errorf("norm: got %v, want 5", norm)
	}

	// Directions are kept, the global norm is rescaled
	got := append(data(a), data(b)...)
	want := []float64{0.6, 0, 0, 0.8}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("clipped gradients: got %v, want %v", got, want)
			break
		}
	}
}

func TestClipGradNormNoop(t *testing.T) {
	small := newParam(0.1, -0.2)
	if _, err := ClipGradNorm([]G.ValueGrad{small}, 1); err != nil {
		t.Fatal(err)
	}
	if d := data(small); d[0] != 0.1 || d[1] != -0.2 {
		t.Errorf("gradients below the bound changed: %v", d)
	}

	large := newParam(30, 40)
	if _, err := ClipGradNorm([]G.ValueGrad{large}, 0); err != nil {
		t.Fatal(err)
	}
	if d := data(large); d[0] != 30 || d[1] != 40 {
		t.Errorf("clipping disabled but gradients changed: %v", d)
	}
}

func TestStepClips(t *testing.T) {
	s, err := New(Vanilla, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	p := newParam(3, 4)
	if err := s.Step([]G.ValueGrad{p}); err != nil {
		t.Fatal(err)
	}

	// One step of gradient descent with the clipped gradient
	want := []float64{-0.6, -0.8}
	got := p.value.Data().([]float64)
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-5 {
			t.Fatalf("weights after step: got %v, want %v", got, want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"adam", "RMSProp", "vanilla"} {
		typ, err := ParseType(name)
		if err != nil {
			t.Fatal(err)
		}
		s, err := New(typ, 1e-3, 1, 0.5)
		if err != nil {
			t.Fatal(err)
		}
		if s.Solver == nil || s.Type != typ {
			t.Errorf("%v: solver not created", typ)
		}
	}

	if _, err := ParseType("lbfgs"); err == nil {
		t.Error("expected error for unknown solver name")
	}
	if _, err := New(Adam, 0, 1, 0.5); err == nil {
		t.Error("expected error for zero step size")
	}
}
