// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"image"

	"github.com/samuelfneumann/voxelwalk/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end. If the episode should
// end, End modifies the timestep so that it is the last in the episode
// and records why the episode ended.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
	AtGoal(state mat.Matrix) bool
}

// Environment implements a simualted environment, which includes a Task to
// complete
type Environment interface {
	Task

	// Reset resets between episodes and returns the first timestep of
	// the next episode
	Reset() (timestep.TimeStep, error)

	// Step takes one environmental step. Episode termination and
	// truncation are both reported through the returned bool.
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)

	// CurrentTimeStep returns the most recent timestep
	CurrentTimeStep() timestep.TimeStep

	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec

	// Render draws the current state of the environment. In
	// RenderNone mode, Render returns a nil image and no error.
	Render() (image.Image, error)

	// Close releases the simulation and any viewer
	Close() error
}
