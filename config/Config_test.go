package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/samuelfneumann/voxelwalk/agent/nonlinear/continuous/ppo"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := write(t, "ppo.json", `{
		"policy_layers": [32, 16],
		"learning_rate": 0.001,
		"n_steps": 1024,
		"gae_lambda": 0.9
	}`)

	c, err := Load(path, ppo.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	want := ppo.DefaultConfig()
	want.PolicyLayers = []int{32, 16}
	want.LearningRate = 0.001
	want.NSteps = 1024
	want.Lambda = 0.9
	if !reflect.DeepEqual(c, want) {
		t.Errorf("want %+v, got %+v", want, c)
	}
}

func TestLoadHCL(t *testing.T) {
	path := write(t, "ppo.hcl", `
policy_layers = [256, 256]
value_layers  = [128]
activation    = "relu"
batch_size    = 128
ent_coef      = 0.01
`)

	c, err := Load(path, ppo.LargeConfig())
	if err != nil {
		t.Fatal(err)
	}

	want := ppo.LargeConfig()
	want.ValueLayers = []int{128}
	want.Activation = "relu"
	want.BatchSize = 128
	want.EntCoef = 0.01
	if !reflect.DeepEqual(c, want) {
		t.Errorf("want %+v, got %+v", want, c)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"unknown.json": `{"n_stepz": 10}`,
		"invalid.json": `{"n_steps": 100, "batch_size": 64}`,
		"broken.json":  `{"n_steps":`,
		"unknown.hcl":  `n_stepz = 10`,
		"invalid.hcl":  `activation = "swish"`,
		"gain.hcl":     "init = \"he\"\ninit_gain = 0",
		"gain.json":    `{"init": "glorotn", "init_gain": -1}`,
		"broken.hcl":   `n_steps = `,
		"ppo.yaml":     `n_steps: 10`,
	}
	for name, content := range tests {
		path := write(t, name, content)
		if _, err := Load(path, ppo.DefaultConfig()); err == nil {
			t.Errorf("%v: expected error", name)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json"),
		ppo.DefaultConfig()); err == nil {
		t.Error("expected error loading missing file")
	}
}
