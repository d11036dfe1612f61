// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"

	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments send each environment TimeStep to Trackers, which cache
// the data they track to be later saved to disk. The Save() function
// will then save all tracked data. This is usually performed after an
// experiment has been run. The Run() method will run the experiment
// until the maximum timestep limit is reached or the context is
// cancelled. The RunEpisode() function will run until the end of the
// current episode.
//
// New Trackers can be registered with an Experiment through the
// constructor or through an Experiment's Register() function.
type Experiment interface {
	Run(ctx context.Context) error

	// RunEpisode returns whether the step limit has been reached
	RunEpisode(ctx context.Context) (bool, error)

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)

	// Steps returns the number of environment steps taken
	Steps() int

	// Resets returns the number of times the environment was reset
	// after an episode ended
	Resets() int
}
