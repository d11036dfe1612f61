package ppo

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/voxelwalk/environment"
	ts "github.com/samuelfneumann/voxelwalk/timestep"
	"gonum.org/v1/gonum/mat"
)

// lineEnv is a small deterministic environment whose reward is the
// first action dimension
type lineEnv struct {
	environment.StepLimit
	features   int
	actionDims int
	current    ts.TimeStep
}

func newLineEnv(features, actionDims, limit int) *lineEnv {
	return &lineEnv{
		StepLimit:  environment.NewStepLimit(limit),
		features:   features,
		actionDims: actionDims,
	}
}

func (l *lineEnv) Start() *mat.VecDense {
	return mat.NewVecDense(l.features, nil)
}

func (l *lineEnv) GetReward(_, a, _ mat.Vector) float64 { return a.AtVec(0) }
func (l *lineEnv) AtGoal(mat.Matrix) bool               { return false }

func (l *lineEnv) Reset() (ts.TimeStep, error) {
	l.current = ts.New(ts.First, 0, 0.99, l.Start(), 0)
	return l.current, nil
}

func (l *lineEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs := mat.NewVecDense(l.features, nil)
	for i := 0; i < l.features; i++ {
		obs.SetVec(i, l.current.Observation.AtVec(i)+0.1*a.AtVec(i%l.actionDims))
	}
	reward := l.GetReward(l.current.Observation, a, obs)
	t := ts.New(ts.Mid, reward, 0.99, obs, l.current.Number+1)
	last := l.End(&t)
	l.current = t
	return t, last, nil
}

func (l *lineEnv) CurrentTimeStep() ts.TimeStep { return l.current }

func (l *lineEnv) RewardSpec() environment.Spec {
	return environment.NewBoxSpec(1, environment.Reward, math.Inf(-1),
		math.Inf(1))
}

func (l *lineEnv) DiscountSpec() environment.Spec {
	return environment.NewBoxSpec(1, environment.Discount, 0, 1)
}

func (l *lineEnv) ObservationSpec() environment.Spec {
	return environment.NewBoxSpec(l.features, environment.Observation,
		math.Inf(-1), math.Inf(1))
}

func (l *lineEnv) ActionSpec() environment.Spec {
	return environment.NewBoxSpec(l.actionDims, environment.Action, -1, 1)
}

func (l *lineEnv) Render() (image.Image, error) { return nil, nil }
func (l *lineEnv) Close() error                 { return nil }

func smallConfig() Config {
	c := DefaultConfig()
	c.PolicyLayers = []int{8}
	c.ValueLayers = []int{8}
	c.NSteps = 8
	c.BatchSize = 4
	c.NEpochs = 2
	c.Verbose = 0
	return c
}

// interact runs agent in env for the given number of steps, learning
// after each step
func interact(t *testing.T, env *lineEnv, agent *PPO, steps int) {
	t.Helper()
	step, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < steps; i++ {
		action, err := agent.SelectAction(step)
		if err != nil {
			t.Fatal(err)
		}
		step, _, err = env.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.Observe(action, step); err != nil {
			t.Fatal(err)
		}
		if err := agent.Step(); err != nil {
			t.Fatal(err)
		}
		if step.Last() {
			agent.EndEpisode()
			if step, err = env.Reset(); err != nil {
				t.Fatal(err)
			}
			if err := agent.ObserveFirst(step); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestSaveLoadDeterministicAction(t *testing.T) {
	env := newLineEnv(3, 2, 10)
	agent, err := New(env, smallConfig(), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()
	agent.Eval()

	obs := ts.New(ts.First, 0, 1, mat.NewVecDense(3, []float64{0.5, -1, 2}), 0)
	want, err := agent.SelectAction(obs)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "agent")
	if err := agent.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + Ext); err != nil {
		t.Fatalf("expected agent saved at %v: %v", path+Ext, err)
	}

	loaded, err := Load(path, env, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()
	loaded.Eval()

	if loaded.RunID() != agent.RunID() {
		t.Errorf("run id: want %v, got %v", agent.RunID(), loaded.RunID())
	}
	got, err := loaded.SelectAction(obs)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(want, got) {
		t.Errorf("deterministic action: want %v, got %v", mat.Formatted(want.T()),
			mat.Formatted(got.T()))
	}
}

func TestLoadDimensionMismatch(t *testing.T) {
	agent, err := New(newLineEnv(3, 2, 10), smallConfig(), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	path := filepath.Join(t.TempDir(), "agent.gob")
	if err := agent.Save(path); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path, newLineEnv(4, 2, 10), 1); err == nil {
		t.Error("expected error loading agent with wrong observation size")
	}
	if _, err := Load(path, newLineEnv(3, 3, 10), 1); err == nil {
		t.Error("expected error loading agent with wrong action size")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing"),
		newLineEnv(3, 2, 10), 1); err == nil {
		t.Error("expected error loading missing agent")
	}
}

func TestTrain(t *testing.T) {
	env := newLineEnv(3, 2, 5)
	agent, err := New(env, smallConfig(), 7)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	var stats []UpdateStats
	agent.OnUpdate = func(s UpdateStats) { stats = append(stats, s) }

	interact(t, env, agent, 20)

	if agent.Updates() != 2 || len(stats) != 2 {
		t.Fatalf("expected 2 updates, got %v (%v reported)", agent.Updates(),
			len(stats))
	}
	for _, s := range stats {
		for name, v := range map[string]float64{
			"policy loss": s.PolicyLoss,
			"value loss":  s.ValueLoss,
			"approx kl":   s.ApproxKL,
			"entropy":     s.Entropy,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("update %v: %v is not finite: %v", s.Update, name, v)
			}
		}
		if s.ClipFraction < 0 || s.ClipFraction > 1 {
			t.Errorf("update %v: clip fraction %v not in [0, 1]", s.Update,
				s.ClipFraction)
		}
	}
	if stats[1].TotalSteps != 16 {
		t.Errorf("expected 16 steps at second update, got %v",
			stats[1].TotalSteps)
	}
}

func TestEvalDoesNotLearn(t *testing.T) {
	env := newLineEnv(3, 2, 50)
	agent, err := New(env, smallConfig(), 3)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()
	agent.Eval()
	if !agent.IsEval() {
		t.Fatal("expected agent in evaluation mode")
	}

	step, _ := env.Reset()
	agent.ObserveFirst(step)
	for i := 0; i < 20; i++ {
		action, err := agent.SelectAction(step)
		if err != nil {
			t.Fatal(err)
		}
		step, _, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatal(err)
		}
		if err := agent.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if agent.Updates() != 0 {
		t.Errorf("expected no updates in evaluation mode, got %v",
			agent.Updates())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
	if err := LargeConfig().Validate(); err != nil {
		t.Errorf("large config: %v", err)
	}

	tests := map[string]func(*Config){
		"batch does not divide steps": func(c *Config) { c.BatchSize = 3 },
		"zero epochs":                 func(c *Config) { c.NEpochs = 0 },
		"bad activation":              func(c *Config) { c.Activation = "swish" },
		"bad solver":                  func(c *Config) { c.Solver = "lbfgs" },
		"bad init":                    func(c *Config) { c.Init = "orthogonal" },
		"negative layer":              func(c *Config) { c.PolicyLayers = []int{-1} },
		"gamma too large":             func(c *Config) { c.Gamma = 1.5 },
		"zero clip range":             func(c *Config) { c.ClipRange = 0 },
	}
	for name, modify := range tests {
		c := smallConfig()
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%v: expected validation error", name)
		}
	}
}

func TestExplainedVariance(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	if ev := explainedVariance(y, y); ev != 1 {
		t.Errorf("perfect prediction: want 1, got %v", ev)
	}
	if ev := explainedVariance([]float64{0, 0, 0, 0}, y); ev != 0 {
		t.Errorf("constant prediction: want 0, got %v", ev)
	}
	if !math.IsNaN(explainedVariance(y, []float64{1, 1, 1, 1})) {
		t.Error("expected NaN with constant targets")
	}
}

func TestTrainImprovesPolicy(t *testing.T) {
	c := smallConfig()
	c.LearningRate = 1e-2
	env := newLineEnv(3, 2, 5)
	agent, err := New(env, c, 11)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	// The reward is the first action dimension, so its mean action in
	// the start state should grow
	start := ts.New(ts.First, 0, 0.99, mat.NewVecDense(3, nil), 0)
	meanAction := func() float64 {
		agent.Eval()
		defer agent.Train()
		a, err := agent.SelectAction(start)
		if err != nil {
			t.Fatal(err)
		}
		return a.AtVec(0)
	}

	before := meanAction()
	interact(t, env, agent, 50*c.NSteps)
	after := meanAction()

	if agent.Updates() != 50 {
		t.Fatalf("expected 50 updates, got %v", agent.Updates())
	}
	if after < before+0.25 {
		t.Errorf("mean rewarded action did not increase: before %.3f, "+
			"after %.3f", before, after)
	}
}

func TestTerminalNotBootstrapped(t *testing.T) {
	c := smallConfig()
	c.NSteps = 4
	env := newLineEnv(3, 2, 10)
	agent, err := New(env, c, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer agent.Close()

	obs := func(x float64) *mat.VecDense {
		return mat.NewVecDense(3, []float64{x, -x, 2 * x})
	}
	action := mat.NewVecDense(2, []float64{0.5, -0.5})

	// One step episodes which alternate between reaching a terminal
	// state and being truncated
	var want []float64
	for i, r := range []float64{1, 2, 3, 4} {
		first := ts.New(ts.First, 0, 0.99, obs(float64(i)), 0)
		if err := agent.ObserveFirst(first); err != nil {
			t.Fatal(err)
		}
		if _, err := agent.SelectAction(first); err != nil {
			t.Fatal(err)
		}

		next := ts.New(ts.Last, r, 0.99, obs(float64(i)+0.5), 1)
		if i%2 == 0 {
			next.SetEnd(ts.TerminalStateReached)
			want = append(want, r)
		} else {
			next.SetEnd(ts.Timeout)
			v, err := agent.value(next.Observation.RawVector().Data)
			if err != nil {
				t.Fatal(err)
			}
			want = append(want, r+c.Gamma*v)
		}
		if err := agent.Observe(action, next); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := agent.buffer.Get()
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if math.Abs(batch.Ret[i]-want[i]) > 1e-9 {
			t.Errorf("return %v: got %v, want %v", i, batch.Ret[i], want[i])
		}
	}
}
