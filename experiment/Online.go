package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/voxelwalk/agent"
	env "github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/experiment/checkpointer"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	ts "github.com/samuelfneumann/voxelwalk/timestep"
)

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed.
//
// Each step, the agent selects an action in the current timestep and
// the environment is stepped with the action. When an episode ends,
// whether by reaching a terminal state or by being truncated, the
// environment is reset, even after the final step of the experiment.
// If Learn is true, the agent observes each transition and updates
// with its Step method; otherwise the agent only acts.
type Online struct {
	env.Environment
	agent.Agent

	// Learn determines whether the agent learns during the experiment
	Learn bool

	maxSteps      int
	currentSteps  int
	resets        int
	started       bool
	step          ts.TimeStep
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many timesteps the experiment is run for, and the t parameter
// is a slice of tracker.Tracker which determine what data is saved.
// The agent learns during the experiment.
func NewOnline(e env.Environment, a agent.Agent, steps int,
	t []tracker.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{
		Environment:   e,
		Agent:         a,
		Learn:         true,
		maxSteps:      steps,
		trackers:      t,
		checkpointers: c,
	}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Steps returns the number of environment steps taken
func (o *Online) Steps() int {
	return o.currentSteps
}

// Resets returns the number of times the environment was reset after
// an episode ended. The reset before the first episode is not counted.
func (o *Online) Resets() int {
	return o.resets
}

// reset resets the environment and starts a new episode
func (o *Online) reset() error {
	step, err := o.Environment.Reset()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	o.step = step

	if o.Learn {
		if err := o.Agent.ObserveFirst(step); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return o.track(step)
}

// RunEpisode runs the experiment until the end of the current episode
// or until the step limit is reached, and returns whether the step
// limit has been reached
func (o *Online) RunEpisode(ctx context.Context) (bool, error) {
	if !o.started {
		if err := o.reset(); err != nil {
			return false, err
		}
		o.started = true
	}

	for o.currentSteps < o.maxSteps {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		// Select action, step in environment
		action, err := o.Agent.SelectAction(o.step)
		if err != nil {
			return false, fmt.Errorf("runEpisode: %w", err)
		}
		step, last, err := o.Environment.Step(action)
		if err != nil {
			return false, fmt.Errorf("runEpisode: step %v: %w",
				o.currentSteps, err)
		}
		o.currentSteps++
		o.step = step

		if err := o.track(step); err != nil {
			return false, err
		}

		// Observe the timestep and step the agent
		if o.Learn {
			if err := o.Agent.Observe(action, step); err != nil {
				return false, fmt.Errorf("runEpisode: %w", err)
			}
			if err := o.Agent.Step(); err != nil {
				return false, fmt.Errorf("runEpisode: %w", err)
			}
		}

		if err := o.checkpoint(); err != nil {
			return false, err
		}

		if last || step.Last() {
			o.Agent.EndEpisode()
			if err := o.reset(); err != nil {
				return false, err
			}
			o.resets++
			return o.currentSteps >= o.maxSteps, nil
		}
	}

	return true, nil
}

// Run runs the entire experiment for all timesteps
func (o *Online) Run(ctx context.Context) error {
	for {
		ended, err := o.RunEpisode(ctx)
		if err != nil {
			return err
		}
		if ended {
			return nil
		}
	}
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each
// tracker
func (o *Online) track(t ts.TimeStep) error {
	for _, tr := range o.trackers {
		if err := tr.Track(t); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint checkpoints the agent with each checkpointer
func (o *Online) checkpoint() error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(o.currentSteps); err != nil {
			return err
		}
	}
	return nil
}
