// Package random implements an agent which selects actions uniformly
// at random and never learns
package random

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/voxelwalk/agent"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// Config configures a Uniform agent
type Config struct{}

// CreateAgent creates a new Uniform agent acting in env
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env.ActionSpec(), seed)
}

// Validate always returns nil
func (c Config) Validate() error { return nil }

// Uniform selects actions uniformly at random from the bounds of an
// action Spec. Since actions never depend on states, evaluation mode
// has no effect on action selection.
type Uniform struct {
	dims int
	dist *distmv.Uniform
	eval bool
}

// New returns a new Uniform agent selecting actions in the bounds of
// spec
func New(spec environment.Spec, seed uint64) (*Uniform, error) {
	if spec.Cardinality != environment.Continuous {
		return nil, fmt.Errorf("new: actions must be continuous")
	}

	dims := spec.Shape.Len()
	bounds := make([]r1.Interval, dims)
	for i := range bounds {
		min, max := spec.LowerBound.AtVec(i), spec.UpperBound.AtVec(i)
		if math.IsInf(min, 0) || math.IsInf(max, 0) || min > max {
			return nil, fmt.Errorf("new: action dimension %v has unusable "+
				"bounds [%v, %v]", i, min, max)
		}
		bounds[i] = r1.Interval{Min: min, Max: max}
	}

	dist := distmv.NewUniform(bounds, rand.NewSource(seed))
	return &Uniform{dims: dims, dist: dist}, nil
}

// SelectAction samples a new action
func (u *Uniform) SelectAction(timestep.TimeStep) (*mat.VecDense, error) {
	return mat.NewVecDense(u.dims, u.dist.Rand(nil)), nil
}

// Eval sets the agent to evaluation mode
func (u *Uniform) Eval() { u.eval = true }

// Train sets the agent to training mode
func (u *Uniform) Train() { u.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (u *Uniform) IsEval() bool { return u.eval }

// Step performs no update
func (u *Uniform) Step() error { return nil }

// Observe ignores the timestep
func (u *Uniform) Observe(mat.Vector, timestep.TimeStep) error { return nil }

// ObserveFirst ignores the timestep
func (u *Uniform) ObserveFirst(timestep.TimeStep) error { return nil }

// EndEpisode does nothing
func (u *Uniform) EndEpisode() {}
