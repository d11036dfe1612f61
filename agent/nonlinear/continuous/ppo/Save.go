package ppo

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samuelfneumann/voxelwalk/environment"
)

// Ext is the extension of saved agents, added to paths without one
const Ext = ".gob"

// archive is the on-disk form of a PPO agent. The last element of
// Policy holds the log standard deviation of the policy.
type archive struct {
	RunID      uuid.UUID
	Config     Config
	Features   int
	ActionDims int
	Policy     [][]float64
	Value      [][]float64
}

// Path returns path with the Ext extension added if path has no
// extension
func Path(path string) string {
	if filepath.Ext(path) == "" {
		return path + Ext
	}
	return path
}

// Save saves the agent to path, adding the Ext extension if path has
// none. Only learned weights and hyperparameters are saved, the
// rollout buffer and solver state are not.
func (p *PPO) Save(path string) error {
	f, err := os.Create(Path(path))
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer f.Close()

	a := archive{
		RunID:      p.runID,
		Config:     p.config,
		Features:   p.features,
		ActionDims: p.actionDims,
		Policy:     p.trainPolicy.Weights(),
		Value:      p.trainValueFn.Weights(),
	}
	if err := gob.NewEncoder(f).Encode(a); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return f.Close()
}

// Load loads an agent saved at path to act in env. An error is
// returned if the observation or action dimensions of env differ from
// those the agent was trained with.
func Load(path string, env environment.Environment, seed uint64) (*PPO,
	error) {
	f, err := os.Open(Path(path))
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	var a archive
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("load: could not decode %v: %w", path, err)
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	if a.Features != features {
		return nil, fmt.Errorf("load: agent expects observations of "+
			"dimension %v but environment has dimension %v", a.Features,
			features)
	}
	if a.ActionDims != actionDims {
		return nil, fmt.Errorf("load: agent expects actions of dimension "+
			"%v but environment has dimension %v", a.ActionDims, actionDims)
	}

	p, err := newPPO(a.Features, a.ActionDims, a.Config, seed,
		&weights{Policy: a.Policy, Value: a.Value})
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	p.runID = a.RunID
	return p, nil
}
