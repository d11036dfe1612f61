package ppo

import (
	"fmt"

	"github.com/samuelfneumann/voxelwalk/agent"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/initwfn"
	"github.com/samuelfneumann/voxelwalk/network"
	"github.com/samuelfneumann/voxelwalk/solver"
)

// Config implements a configuration of a PPO agent with a Gaussian
// MLP policy and an MLP state value function. Configs can be read from
// JSON or HCL files, fields missing from a file keep their defaults.
type Config struct {
	// Hidden layers of the policy and value function networks
	PolicyLayers []int `json:"policy_layers" hcl:"policy_layers,optional"`
	ValueLayers  []int `json:"value_layers" hcl:"value_layers,optional"`

	// Activation of hidden layers, one of relu, tanh, identity
	Activation string `json:"activation" hcl:"activation,optional"`

	// Weight initializer and its gain, see initwfn.Parse
	Init     string  `json:"init" hcl:"init,optional"`
	InitGain float64 `json:"init_gain" hcl:"init_gain,optional"`

	// Initial log standard deviation of the policy
	InitLogStd float64 `json:"init_log_std" hcl:"init_log_std,optional"`

	// Solver is one of Adam, RMSProp, Vanilla
	Solver       string  `json:"solver" hcl:"solver,optional"`
	LearningRate float64 `json:"learning_rate" hcl:"learning_rate,optional"`

	// MaxGradNorm rescales the gradients of each update step so that
	// their global L2 norm is at most MaxGradNorm, <= 0 disables
	// clipping
	MaxGradNorm float64 `json:"max_grad_norm" hcl:"max_grad_norm,optional"`

	// NSteps is the number of environment steps per rollout
	NSteps int `json:"n_steps" hcl:"n_steps,optional"`

	// BatchSize is the minibatch size, NEpochs the number of passes
	// over each rollout
	BatchSize int `json:"batch_size" hcl:"batch_size,optional"`
	NEpochs   int `json:"n_epochs" hcl:"n_epochs,optional"`

	Gamma     float64 `json:"gamma" hcl:"gamma,optional"`
	Lambda    float64 `json:"gae_lambda" hcl:"gae_lambda,optional"`
	ClipRange float64 `json:"clip_range" hcl:"clip_range,optional"`
	EntCoef   float64 `json:"ent_coef" hcl:"ent_coef,optional"`
	VFCoef    float64 `json:"vf_coef" hcl:"vf_coef,optional"`

	// Verbose > 0 logs statistics after each update
	Verbose int `json:"verbose" hcl:"verbose,optional"`
}

// DefaultConfig returns the default PPO configuration, a small network
// with short rollouts
func DefaultConfig() Config {
	return Config{
		PolicyLayers: []int{64, 64},
		ValueLayers:  []int{64, 64},
		Activation:   "tanh",
		Init:         "glorotu",
		InitGain:     1.0,
		InitLogStd:   0.0,
		Solver:       string(solver.Adam),
		LearningRate: 3e-4,
		MaxGradNorm:  0.5,
		NSteps:       2048,
		BatchSize:    64,
		NEpochs:      10,
		Gamma:        0.99,
		Lambda:       0.95,
		ClipRange:    0.2,
		EntCoef:      0.0,
		VFCoef:       0.5,
		Verbose:      1,
	}
}

// LargeConfig returns the configuration used with normalized
// environments: a larger network with longer rollouts and larger
// minibatches
func LargeConfig() Config {
	c := DefaultConfig()
	c.PolicyLayers = []int{256, 256}
	c.ValueLayers = []int{256, 256}
	c.NSteps = 8192
	c.BatchSize = 256
	return c
}

// Validate returns an error describing whether the configuration is
// valid
func (c Config) Validate() error {
	for _, layers := range [][]int{c.PolicyLayers, c.ValueLayers} {
		for _, size := range layers {
			if size <= 0 {
				return fmt.Errorf("validate: layer sizes must be positive, "+
					"got %v", layers)
			}
		}
	}
	if _, err := network.ParseActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if _, err := initwfn.Parse(c.Init, c.InitGain); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if _, err := solver.ParseType(c.Solver); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("validate: learning rate must be positive, got %v",
			c.LearningRate)
	}
	if c.NSteps <= 0 || c.BatchSize <= 0 || c.NEpochs <= 0 {
		return fmt.Errorf("validate: n_steps (%v), batch_size (%v) and "+
			"n_epochs (%v) must be positive", c.NSteps, c.BatchSize, c.NEpochs)
	}
	if c.NSteps%c.BatchSize != 0 {
		return fmt.Errorf("validate: n_steps (%v) must be a multiple of "+
			"batch_size (%v)", c.NSteps, c.BatchSize)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: gae_lambda must be in [0, 1], got %v",
			c.Lambda)
	}
	if c.ClipRange <= 0 {
		return fmt.Errorf("validate: clip_range must be positive, got %v",
			c.ClipRange)
	}
	if c.EntCoef < 0 || c.VFCoef <= 0 {
		return fmt.Errorf("validate: ent_coef must be non-negative and "+
			"vf_coef positive, got %v and %v", c.EntCoef, c.VFCoef)
	}
	return nil
}

// CreateAgent creates a new PPO agent for env
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env, c, seed)
}

// activations returns one activation per hidden layer
func activations(name string, layers int) []*network.Activation {
	acts := make([]*network.Activation, layers)
	for i := range acts {
		acts[i], _ = network.ParseActivation(name)
	}
	return acts
}

// newSolver returns a new solver as described by the config
func (c Config) newSolver() (*solver.Solver, error) {
	t, err := solver.ParseType(c.Solver)
	if err != nil {
		return nil, err
	}
	return solver.New(t, c.LearningRate, 1, c.MaxGradNorm)
}
