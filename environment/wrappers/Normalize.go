package wrappers

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"github.com/samuelfneumann/voxelwalk/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultClip is the default bound on normalized observations and
	// rewards
	DefaultClip = 10.0

	// DefaultEpsilon is the default constant added to variances
	// before taking square roots
	DefaultEpsilon = 1e-8

	// Initial count of running statistics
	initCount = 1e-4
)

// Normalize wraps an environment and normalizes its observations and
// rewards using running estimates of their statistics.
//
// Observations are normalized by the running mean and variance of
// all observations seen so far:
//
//	obs <- clip((obs - mean) / sqrt(var + ε), -ClipObs, ClipObs)
//
// Rewards are scaled by the running standard deviation of the
// discounted return:
//
//	return <- ɣ * return + reward
//	reward <- clip(reward / sqrt(var(return) + ε), -ClipReward, ClipReward)
//
// where the discounted return is reset to 0 at the end of each
// episode. Statistics are only updated when Training is true, and
// rewards are only normalized when NormReward is true. When playing
// back a learned policy, both should be false so that the statistics
// saved during training are used unchanged and raw rewards are
// reported.
//
// Normalize itself implements the environment.Environment interface,
// and is therefore itself an Environment. Statistics can be saved and
// loaded with Save and Load, but nothing ties saved statistics to the
// policy trained with them: loading statistics of a different run
// silently produces meaningless observations.
type Normalize struct {
	environment.Environment

	Training   bool
	NormObs    bool
	NormReward bool
	ClipObs    float64
	ClipReward float64
	Gamma      float64
	Epsilon    float64

	obsRMS *RunningMeanStd
	retRMS *RunningMeanStd
	ret    float64

	current timestep.TimeStep
}

// NewNormalize returns a new Normalize wrapping env, which normalizes
// both observations and rewards and updates statistics. The argument
// gamma is the discount used to compute returns for reward scaling.
func NewNormalize(env environment.Environment, gamma float64) *Normalize {
	features := env.ObservationSpec().Shape.Len()
	return &Normalize{
		Environment: env,
		Training:    true,
		NormObs:     true,
		NormReward:  true,
		ClipObs:     DefaultClip,
		ClipReward:  DefaultClip,
		Gamma:       gamma,
		Epsilon:     DefaultEpsilon,
		obsRMS:      NewRunningMeanStd(features, initCount),
		retRMS:      NewRunningMeanStd(1, initCount),
	}
}

// Reset resets the wrapped environment and returns the normalized
// first timestep of the next episode
func (n *Normalize) Reset() (timestep.TimeStep, error) {
	step, err := n.Environment.Reset()
	if err != nil {
		return step, err
	}
	n.ret = 0

	if n.Training && n.NormObs {
		if err := n.obsRMS.Update(step.Observation.RawVector().Data); err != nil {
			return step, fmt.Errorf("reset: %w", err)
		}
	}

	step.Observation = n.normalizeObs(step.Observation)
	n.current = step
	return step, nil
}

// Step takes one environmental step and returns the normalized
// timestep
func (n *Normalize) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	step, last, err := n.Environment.Step(action)
	if err != nil {
		return step, last, err
	}

	if n.Training && n.NormObs {
		if err := n.obsRMS.Update(step.Observation.RawVector().Data); err != nil {
			return step, last, fmt.Errorf("step: %w", err)
		}
	}
	step.Observation = n.normalizeObs(step.Observation)

	n.ret = n.ret*n.Gamma + step.Reward
	if n.Training {
		if err := n.retRMS.Update([]float64{n.ret}); err != nil {
			return step, last, fmt.Errorf("step: %w", err)
		}
	}
	step.Reward = n.normalizeReward(step.Reward)
	if last {
		n.ret = 0
	}

	n.current = step
	return step, last, nil
}

// CurrentTimeStep returns the most recent normalized timestep
func (n *Normalize) CurrentTimeStep() timestep.TimeStep {
	return n.current
}

// ObservationSpec returns the observation specification of the
// environment. Normalized observations are bounded by ClipObs.
func (n *Normalize) ObservationSpec() environment.Spec {
	if !n.NormObs {
		return n.Environment.ObservationSpec()
	}
	return environment.NewBoxSpec(n.obsRMS.Dims(), environment.Observation,
		-n.ClipObs, n.ClipObs)
}

// ObsStats returns a copy of the running observation statistics
func (n *Normalize) ObsStats() *RunningMeanStd {
	return n.obsRMS.Copy()
}

// ReturnStats returns a copy of the running return statistics
func (n *Normalize) ReturnStats() *RunningMeanStd {
	return n.retRMS.Copy()
}

func (n *Normalize) normalizeObs(obs *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(obs.Len(), nil)
	out.CopyVec(obs)
	if !n.NormObs {
		return out
	}

	data := out.RawVector().Data
	for i := range data {
		v := (data[i] - n.obsRMS.Mean[i]) / math.Sqrt(n.obsRMS.Var[i]+n.Epsilon)
		data[i] = floatutils.ClipSymmetric(v, n.ClipObs)
	}
	return out
}

func (n *Normalize) normalizeReward(r float64) float64 {
	if !n.NormReward {
		return r
	}
	r /= math.Sqrt(n.retRMS.Var[0] + n.Epsilon)
	return floatutils.ClipSymmetric(r, n.ClipReward)
}

// normalizeArchive is the on-disk form of normalization statistics
type normalizeArchive struct {
	Obs        RunningMeanStd
	Ret        RunningMeanStd
	ClipObs    float64
	ClipReward float64
	Gamma      float64
	Epsilon    float64
	NormObs    bool
	NormReward bool
}

// Save saves the normalization statistics and parameters to path
func (n *Normalize) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer f.Close()

	a := normalizeArchive{
		Obs:        *n.obsRMS,
		Ret:        *n.retRMS,
		ClipObs:    n.ClipObs,
		ClipReward: n.ClipReward,
		Gamma:      n.Gamma,
		Epsilon:    n.Epsilon,
		NormObs:    n.NormObs,
		NormReward: n.NormReward,
	}
	if err := gob.NewEncoder(f).Encode(a); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return f.Close()
}

// Load replaces the normalization statistics and parameters with those
// saved at path. Training and NormReward are left unchanged so that
// the caller decides how loaded statistics are used.
func (n *Normalize) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	var a normalizeArchive
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return fmt.Errorf("load: could not decode %v: %w", path, err)
	}
	if a.Obs.Dims() != n.obsRMS.Dims() || len(a.Obs.Var) != a.Obs.Dims() ||
		a.Ret.Dims() != 1 || len(a.Ret.Var) != 1 {
		return fmt.Errorf("load: statistics of observation size %v do not "+
			"match environment observation size %v", a.Obs.Dims(),
			n.obsRMS.Dims())
	}

	n.obsRMS = a.Obs.Copy()
	n.retRMS = a.Ret.Copy()
	n.ClipObs = a.ClipObs
	n.ClipReward = a.ClipReward
	n.Gamma = a.Gamma
	n.Epsilon = a.Epsilon
	n.NormObs = a.NormObs
	return nil
}

// LoadNormalize wraps env in a Normalize using the statistics saved
// at path, in evaluation mode: statistics are not updated and rewards
// are not normalized.
func LoadNormalize(path string, env environment.Environment) (*Normalize,
	error) {
	n := NewNormalize(env, 0.99)
	if err := n.Load(path); err != nil {
		return nil, err
	}
	n.Training = false
	n.NormReward = false
	return n, nil
}
