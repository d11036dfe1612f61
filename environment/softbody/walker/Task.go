package walker

import (
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// walkerTask is a Task which needs access to the simulation, for
// example to read the robot's centre of mass
type walkerTask interface {
	environment.Task
	registerEnv(*Walker)
	reset()
}

// Walk implements the walking task: the robot is rewarded for the
// distance its centre of mass travels to the right, in voxels, and
// receives a bonus of GoalReward when it reaches the end of the
// terrain, which terminates the episode.
type Walk struct {
	environment.Starter
	ender environment.Enders

	env *Walker
}

// GoalReward is the reward for reaching the end of the terrain
const GoalReward float64 = 1.0

// NewWalk returns a new walking task which truncates episodes after
// cutoff steps
func NewWalk(s environment.Starter, cutoff int) *Walk {
	w := &Walk{Starter: s}
	goal := environment.NewFunctionEnder(func(*mat.VecDense) bool {
		return w.AtGoal(nil)
	}, timestep.TerminalStateReached)

	// Reaching the goal takes precedence over truncation
	w.ender = environment.Enders{goal, environment.NewStepLimit(cutoff)}
	return w
}

// DefaultStarter returns a starter which places the robot at
// (StartX, StartY) with up to jitter voxels of uniform random offset
// along the terrain
func DefaultStarter(jitter float64, seed uint64) environment.Starter {
	return environment.NewUniformStarter([]r1.Interval{
		{Min: StartX, Max: StartX + jitter},
		{Min: StartY, Max: StartY},
	}, seed)
}

func (w *Walk) registerEnv(env *Walker) {
	w.env = env
}

func (w *Walk) reset() {}

// AtGoal returns whether the robot's centre of mass has passed the end
// of the terrain
func (w *Walk) AtGoal(state mat.Matrix) bool {
	x, _ := w.env.COM()
	return x/VoxelSize >= TerrainLength
}

// GetReward returns the distance travelled by the robot's centre of
// mass along the x axis during the last step, in voxels
func (w *Walk) GetReward(state, action, nextState mat.Vector) float64 {
	x, _ := w.env.COM()
	prevX, _ := w.env.PrevCOM()

	reward := (x - prevX) / VoxelSize
	if w.AtGoal(nil) {
		reward += GoalReward
	}
	return reward
}

// End ends the episode when the robot reaches the end of the terrain,
// or truncates the episode at the step limit
func (w *Walk) End(t *timestep.TimeStep) bool {
	return w.ender.End(t)
}
