package trackers

import (
	"github.com/samuelfneumann/voxelwalk/timestep"
)

// Episode summarizes a finished episode
type Episode struct {
	Number  int // Episodes finished before this one
	Return  float64
	Length  int
	EndType timestep.EndType
}

// Episodes passes a summary of each finished episode to a function,
// for example to log a rolling mean of returns or to store episodes
// in a database. Episodes saves nothing.
type Episodes struct {
	sink     func(Episode) error
	finished int
	ret      float64
}

// NewEpisodes returns a new Episodes which calls sink at the end of
// each episode
func NewEpisodes(sink func(Episode) error) *Episodes {
	return &Episodes{sink: sink}
}

// Track accumulates the return of the current episode and calls the
// sink when the episode ends
func (e *Episodes) Track(t timestep.TimeStep) error {
	if t.First() {
		e.ret = 0
		return nil
	}
	e.ret += t.Reward
	if !t.Last() {
		return nil
	}

	ep := Episode{
		Number:  e.finished,
		Return:  e.ret,
		Length:  t.Number,
		EndType: t.EndType(),
	}
	e.finished++
	e.ret = 0
	return e.sink(ep)
}

// Save does nothing
func (e *Episodes) Save() error { return nil }
