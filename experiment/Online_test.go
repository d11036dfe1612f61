package experiment

import (
	"context"
	"errors"
	"testing"

	"github.com/samuelfneumann/voxelwalk/agent/random"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/environment/softbody/walker"
	"github.com/samuelfneumann/voxelwalk/experiment/checkpointer"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	"github.com/samuelfneumann/voxelwalk/experiment/trackers"
	"github.com/samuelfneumann/voxelwalk/morphology"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func newWalker(t *testing.T, cutoff int, mode environment.RenderMode) *walker.Walker {
	t.Helper()
	robot, err := morphology.Sample(3, 3, rand.NewSource(4))
	if err != nil {
		t.Fatal(err)
	}
	task := walker.NewWalk(walker.DefaultStarter(0, 1), cutoff)
	w, _, err := walker.New(robot, task, 0.99, mode, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestOnlineResets(t *testing.T) {
	for _, test := range []struct {
		steps, resets, episodes int
	}{
		{120, 2, 2},
		{100, 2, 2},
		{49, 0, 0},
	} {
		env := newWalker(t, 50, environment.RenderNone)
		a, err := random.New(env.ActionSpec(), 3)
		if err != nil {
			t.Fatal(err)
		}

		lengths := trackers.NewEpisodeLength("")
		exp := NewOnline(env, a, test.steps, []tracker.Tracker{lengths}, nil)
		exp.Learn = false
		if err := exp.Run(context.Background()); err != nil {
			t.Fatal(err)
		}

		if exp.Steps() != test.steps {
			t.Errorf("%v steps: took %v steps", test.steps, exp.Steps())
		}
		if exp.Resets() != test.resets {
			t.Errorf("%v steps: want %v resets, got %v", test.steps,
				test.resets, exp.Resets())
		}
		if got := len(lengths.Lengths()); got != test.episodes {
			t.Errorf("%v steps: want %v finished episodes, got %v",
				test.steps, test.episodes, got)
		}
		for _, l := range lengths.Lengths() {
			if l != 50 {
				t.Errorf("expected episodes truncated at 50 steps, got %v", l)
			}
		}
	}
}

func TestOnlineFrames(t *testing.T) {
	env := newWalker(t, 10, environment.RenderRGBArray)
	a, _ := random.New(env.ActionSpec(), 1)

	frames := trackers.NewFrames(env)
	returns := trackers.NewReturn("")
	exp := NewOnline(env, a, 25, []tracker.Tracker{frames, returns}, nil)
	exp.Learn = false
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(frames.Frames()) != 25 {
		t.Errorf("want 25 frames, got %v", len(frames.Frames()))
	}
	if len(returns.Returns()) != 2 {
		t.Errorf("want 2 episode returns, got %v", len(returns.Returns()))
	}
}

func TestOnlineNoFramesWithoutRender(t *testing.T) {
	env := newWalker(t, 10, environment.RenderNone)
	a, _ := random.New(env.ActionSpec(), 1)

	frames := trackers.NewFrames(env)
	exp := NewOnline(env, a, 5, []tracker.Tracker{frames}, nil)
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(frames.Frames()) != 0 {
		t.Errorf("want no frames, got %v", len(frames.Frames()))
	}
}

func TestOnlineCancel(t *testing.T) {
	env := newWalker(t, 50, environment.RenderNone)
	a, _ := random.New(env.ActionSpec(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exp := NewOnline(env, a, 100, nil, nil)
	if err := exp.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if exp.Steps() != 0 {
		t.Errorf("expected no steps after cancel, got %v", exp.Steps())
	}
}

// failing is an environment whose Step always fails
type failing struct {
	*walker.Walker
}

var errStep = errors.New("simulation diverged")

func (f failing) Step(*mat.VecDense) (timestep.TimeStep, bool, error) {
	return timestep.TimeStep{}, false, errStep
}

func TestOnlineStepError(t *testing.T) {
	env := failing{newWalker(t, 50, environment.RenderNone)}
	a, _ := random.New(env.ActionSpec(), 1)

	exp := NewOnline(env, a, 10, nil, nil)
	if err := exp.Run(context.Background()); !errors.Is(err, errStep) {
		t.Errorf("expected step error, got %v", err)
	}
}

type counter struct{ saves []string }

func (c *counter) Save(path string) error {
	c.saves = append(c.saves, path)
	return nil
}

func TestOnlineCheckpoints(t *testing.T) {
	env := newWalker(t, 50, environment.RenderNone)
	a, _ := random.New(env.ActionSpec(), 1)

	saver := &counter{}
	c, err := checkpointer.NewNStep(10, saver,
		checkpointer.StepFilenames("model", ".gob"))
	if err != nil {
		t.Fatal(err)
	}
	exp := NewOnline(env, a, 35, nil, []checkpointer.Checkpointer{c})
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(saver.saves) != 3 {
		t.Errorf("want 3 checkpoints, got %v", saver.saves)
	}
}

func TestEpisodesAndRegister(t *testing.T) {
	env := newWalker(t, 20, environment.RenderNone)
	a, _ := random.New(env.ActionSpec(), 2)

	window := trackers.NewWindow(100)
	var episodes []trackers.Episode
	sink := trackers.NewEpisodes(func(ep trackers.Episode) error {
		episodes = append(episodes, ep)
		window.Add(ep)
		return nil
	})
	returns := trackers.NewReturn("")

	// Registering the environment with a tracker tracks the same
	// timesteps when the experiment runs on the environment itself
	registered := tracker.Register(trackers.NewReturn(""), env)

	exp := NewOnline(env, a, 60, []tracker.Tracker{sink, returns,
		registered}, nil)
	exp.Learn = false
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(episodes) != 3 || window.Len() != 3 {
		t.Fatalf("want 3 episodes, got %v", len(episodes))
	}
	for i, ep := range episodes {
		if ep.Number != i || ep.Length != 20 ||
			ep.EndType != timestep.Timeout {
			t.Errorf("episode %v: unexpected summary %+v", i, ep)
		}
		if ep.Return != returns.Returns()[i] {
			t.Errorf("episode %v: return %v does not match tracked return %v",
				i, ep.Return, returns.Returns()[i])
		}
	}
	if _, length := window.Mean(); length != 20 {
		t.Errorf("want mean length 20, got %v", length)
	}
}
