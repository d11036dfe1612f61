package main

import (
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/environment/softbody/walker"
	"github.com/samuelfneumann/voxelwalk/experiment/trackers"
	"github.com/samuelfneumann/voxelwalk/morphology"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"github.com/samuelfneumann/voxelwalk/utils/progressbar"
	"golang.org/x/exp/rand"
)

// discount is the discount reported by walker timesteps
const discount = 0.99

// sampleRobot samples a size x size robot
func sampleRobot(size int, seed uint64) (morphology.Robot, error) {
	if size <= 0 {
		return morphology.Robot{}, fmt.Errorf("robot size must be positive, "+
			"got %v", size)
	}
	return morphology.Sample(size, size, rand.NewSource(seed))
}

// loadOrSampleRobot loads the robot saved at path or, if path is
// empty, samples a new size x size robot
func loadOrSampleRobot(path string, size int, seed uint64) (morphology.Robot,
	error) {
	if path == "" {
		log.Printf("sampling a new %vx%v robot", size, size)
		return sampleRobot(size, seed)
	}
	return morphology.Load(path)
}

// newWalker returns a new Walker-v0 environment for robot
func newWalker(robot morphology.Robot, mode environment.RenderMode,
	seed uint64) (*walker.Walker, error) {
	task := walker.NewWalk(walker.DefaultStarter(0, seed), walker.EpisodeSteps)
	w, _, err := walker.New(robot, task, discount, mode, nil)
	if err != nil {
		return nil, err
	}
	if mode == environment.RenderHuman {
		log.Printf("rendering to %v", walker.LiveFrameFile)
	}
	return w, nil
}

// progress displays a progress bar of experiment steps
type progress struct {
	bar   *progressbar.ManualProgressBar
	every int
}

func newProgress(steps int) *progress {
	return &progress{
		bar:   progressbar.NewManualProgressBar(os.Stdout, 40, steps),
		every: max(1, steps/200),
	}
}

func (p *progress) Track(t timestep.TimeStep) error {
	if t.First() {
		return nil
	}
	p.bar.Increment()
	if p.bar.Progress()%p.every == 0 {
		p.bar.Display()
	}
	return nil
}

func (p *progress) Save() error {
	p.bar.Done()
	return nil
}

// logEpisodes returns a tracker which logs the return and length of
// each episode
func logEpisodes() *trackers.Episodes {
	return trackers.NewEpisodes(func(ep trackers.Episode) error {
		log.Printf("episode %v: return %.3f | length %v | %v", ep.Number,
			ep.Return, ep.Length, ep.EndType)
		return nil
	})
}
