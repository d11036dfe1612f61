package random

import (
	"math"
	"testing"

	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestUniformInBounds(t *testing.T) {
	spec := environment.NewBoxSpec(4, environment.Action, 0.6, 1.6)
	u, err := New(spec, 10)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 1000; i++ {
		a, err := u.SelectAction(timestep.TimeStep{})
		if err != nil {
			t.Fatal(err)
		}
		if a.Len() != 4 {
			t.Fatalf("expected action of length 4, got %v", a.Len())
		}
		for j := 0; j < a.Len(); j++ {
			if v := a.AtVec(j); v < 0.6 || v > 1.6 {
				t.Fatalf("action %v out of bounds", v)
			}
		}
	}
}

func TestUniformSeeded(t *testing.T) {
	spec := environment.NewBoxSpec(3, environment.Action, -1, 1)
	u1, _ := New(spec, 5)
	u2, _ := New(spec, 5)
	for i := 0; i < 10; i++ {
		a1, _ := u1.SelectAction(timestep.TimeStep{})
		a2, _ := u2.SelectAction(timestep.TimeStep{})
		if !mat.Equal(a1, a2) {
			t.Fatalf("step %v: equal seeds gave different actions", i)
		}
	}
}

func TestUniformUnboundedSpec(t *testing.T) {
	spec := environment.NewBoxSpec(2, environment.Action, math.Inf(-1), 1)
	if _, err := New(spec, 1); err == nil {
		t.Error("expected error with unbounded action spec")
	}
}
