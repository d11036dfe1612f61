package environment

import (
	"testing"

	"github.com/samuelfneumann/voxelwalk/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestSpecClip(t *testing.T) {
	s := NewBoxSpec(3, Action, 0.6, 1.6)
	v := mat.NewVecDense(3, []float64{0.0, 1.0, 3.0})
	s.Clip(v)

	want := []float64{0.6, 1.0, 1.6}
	for i, w := range want {
		if v.AtVec(i) != w {
			t.Errorf("index %d: got %v, want %v", i, v.AtVec(i), w)
		}
	}
}

func TestStepLimit(t *testing.T) {
	limit := NewStepLimit(5)

	ts := timestep.New(timestep.Mid, 0, 1, nil, 4)
	if limit.End(&ts) {
		t.Fatal("episode ended before the step limit")
	}

	ts = timestep.New(timestep.Mid, 0, 1, nil, 5)
	if !limit.End(&ts) {
		t.Fatal("episode did not end at the step limit")
	}
	if !ts.Last() || !ts.TimeoutEnd() {
		t.Errorf("expected truncated last step, got %v", ts)
	}
}

func TestEnders(t *testing.T) {
	goal := NewFunctionEnder(func(o *mat.VecDense) bool {
		return o.AtVec(0) > 1
	}, timestep.TerminalStateReached)
	e := Enders{goal, NewStepLimit(10)}

	ts := timestep.New(timestep.Mid, 0, 1, mat.NewVecDense(1, []float64{2}), 10)
	if !e.End(&ts) {
		t.Fatal("expected episode to end")
	}
	if !ts.TerminalEnd() {
		t.Errorf("first ender should decide end type, got %v", ts.EndType())
	}
}
