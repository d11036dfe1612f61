package main

import (
	"context"
	"image/gif"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/samuelfneumann/voxelwalk/agent/nonlinear/continuous/ppo"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	"github.com/samuelfneumann/voxelwalk/morphology"
	"github.com/spf13/pflag"
)

func execute(t *testing.T, args ...string) {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, cmd := range newRootCmd().Commands() {
		names = append(names, cmd.Name())
	}
	sort.Strings(names)

	want := []string{"play", "random", "record", "train"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("want commands %v, got %v", want, names)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VOXELWALK_SEED", "7")
	t.Setenv("VOXELWALK_NORM_OUT", "stats.gob")
	t.Setenv("VOXELWALK_STEPS", "10")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	seed := flags.Uint64("seed", 123, "")
	normOut := flags.String("norm-out", "vecnormalize.gob", "")
	steps := flags.Int("steps", 300, "")
	if err := flags.Parse([]string{"--steps", "20"}); err != nil {
		t.Fatal(err)
	}

	if err := applyEnv(flags); err != nil {
		t.Fatal(err)
	}
	if *seed != 7 || *normOut != "stats.gob" {
		t.Errorf("environment not applied: seed %v norm-out %v", *seed,
			*normOut)
	}
	if *steps != 20 {
		t.Errorf("command line flag overridden by environment: steps %v",
			*steps)
	}
	if !flags.Changed("seed") {
		t.Error("flag set from environment should be marked changed")
	}

	t.Setenv("VOXELWALK_SEED", "seven")
	flags = pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("seed", 123, "")
	if err := applyEnv(flags); err == nil {
		t.Error("expected error with malformed environment value")
	}
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	robot := filepath.Join(dir, "robot.gob")
	norm := filepath.Join(dir, "norm.gob")
	runs := filepath.Join(dir, "runs.db")
	demo := filepath.Join(dir, "demo.gif")
	history := filepath.Join(dir, "history")

	hyper := filepath.Join(dir, "ppo.json")
	err := os.WriteFile(hyper, []byte(`{
		"policy_layers": [8],
		"value_layers": [8],
		"n_steps": 16,
		"batch_size": 8,
		"n_epochs": 1,
		"verbose": 0
	}`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	execute(t, "random", "--size", "3", "--steps", "20", "--render", "none")

	execute(t, "train", "--size", "3", "--timesteps", "20", "--out", model,
		"--robot", robot, "--normalize", "--norm-out", norm, "--config",
		hyper, "--runs-db", runs, "--checkpoint-every", "16", "--history",
		history)

	checkpoint := model + "_16_steps"
	for _, path := range []string{model + ppo.Ext, robot, norm, runs,
		checkpoint + ppo.Ext, normFile(checkpoint + ppo.Ext)} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %v to exist: %v", path, err)
		}
	}
	if got := normFile(checkpoint + ppo.Ext); got !=
		checkpoint+"_vecnormalize.gob" {
		t.Errorf("unexpected checkpoint statistics path %v", got)
	}

	returns, err := tracker.LoadData[float64](returnsFile(history))
	if err != nil {
		t.Fatal(err)
	}
	lengths, err := tracker.LoadData[int](lengthsFile(history))
	if err != nil {
		t.Fatal(err)
	}
	if len(returns) != len(lengths) {
		t.Errorf("%v returns for %v episode lengths", len(returns),
			len(lengths))
	}
	if r, err := morphology.Load(robot); err != nil || r.Body.Rows != 3 {
		t.Errorf("unexpected saved robot: %v (%v)", r.Body, err)
	}

	execute(t, "play", "--model", model, "--robot", robot, "--norm", norm,
		"--steps", "10", "--render", "none")

	// Checkpoints replay with the statistics saved alongside them
	execute(t, "play", "--model", checkpoint, "--robot", robot, "--norm",
		normFile(checkpoint+ppo.Ext), "--steps", "5", "--render", "none")

	execute(t, "record", "--model", model, "--robot", robot, "--norm", norm,
		"--steps", "6", "--fps", "25", "--gif", demo)

	f, err := os.Open(demo)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(anim.Image) != 6 {
		t.Errorf("want 6 frames, got %v", len(anim.Image))
	}
}

func TestPlayDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	robot := filepath.Join(dir, "robot.gob")
	other := filepath.Join(dir, "other.gob")

	hyper := filepath.Join(dir, "ppo.hcl")
	err := os.WriteFile(hyper, []byte(`
policy_layers = [4]
value_layers  = [4]
n_steps       = 8
batch_size    = 4
n_epochs      = 1
verbose       = 0
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	execute(t, "train", "--size", "3", "--timesteps", "8", "--out", model,
		"--robot", robot, "--config", hyper)

	// Larger than any 3x3 robot
	body := morphology.NewBody(5, 5)
	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			body.Set(r, c, morphology.HorizontalActuator)
		}
	}
	big := morphology.Robot{Body: body,
		Connections: morphology.FullConnectivity(body)}
	if err := big.Save(other); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{"play", "--model", model, "--robot", other,
		"--steps", "5", "--render", "none"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("expected error playing a model with a robot of another shape")
	}
}
