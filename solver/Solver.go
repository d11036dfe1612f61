// Package solver wraps Gorgonia solvers so that a solver can be
// chosen by name in a configuration file, and clips gradients by their
// global norm before each step.
package solver

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// ParseType returns the solver type with the given name, ignoring case
func ParseType(name string) (Type, error) {
	for _, t := range []Type{Adam, RMSProp, Vanilla} {
		if strings.EqualFold(name, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("parseType: unknown solver type %q", name)
}

// Config describes a Gorgonia solver and creates it
type Config interface {
	Create() G.Solver
}

// Solver is a Gorgonia solver which rescales the gradients of a step
// so that their global L2 norm is at most MaxGradNorm.
type Solver struct {
	G.Solver
	Type
	Config

	// MaxGradNorm <= 0 disables clipping
	MaxGradNorm float64
}

// New returns a solver of type t with default hyperparameters and the
// given step size
func New(t Type, stepSize float64, batchSize int,
	maxGradNorm float64) (*Solver, error) {
	if stepSize <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("new: step size (%v) and batch size (%v) "+
			"must be positive", stepSize, batchSize)
	}

	var c Config
	switch t {
	case Adam:
		c = AdamConfig{StepSize: stepSize, Epsilon: 1e-8, Beta1: 0.9,
			Beta2: 0.999, Batch: batchSize}
	case RMSProp:
		c = RMSPropConfig{StepSize: stepSize, Epsilon: 1e-8, Rho: 0.999,
			Batch: batchSize}
	case Vanilla:
		c = VanillaConfig{StepSize: stepSize, Batch: batchSize}
	default:
		return nil, fmt.Errorf("new: unknown solver type %q", t)
	}

	return &Solver{
		Solver:      c.Create(),
		Type:        t,
		Config:      c,
		MaxGradNorm: maxGradNorm,
	}, nil
}

// Step clips the gradients of model and then updates model
func (s *Solver) Step(model []G.ValueGrad) error {
	if _, err := ClipGradNorm(model, s.MaxGradNorm); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	return s.Solver.Step(model)
}

// ClipGradNorm scales the gradients of model in place so that their
// global L2 norm is at most maxNorm and returns the norm before
// scaling. If maxNorm <= 0 the gradients are left unchanged.
func ClipGradNorm(model []G.ValueGrad, maxNorm float64) (float64, error) {
	grads := make([][]float64, 0, len(model))
	sq := 0.0
	for _, vg := range model {
		grad, err := vg.Grad()
		if err != nil {
			return 0, fmt.Errorf("clipGradNorm: %w", err)
		}
		data, ok := grad.Data().([]float64)
		if !ok {
			return 0, fmt.Errorf("clipGradNorm: unsupported gradient "+
				"data of type %T", grad.Data())
		}
		grads = append(grads, data)
		sq += floats.Dot(data, data)
	}

	norm := math.Sqrt(sq)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm, nil
	}
	scale := maxNorm / (norm + 1e-6)
	for _, data := range grads {
		floats.Scale(scale, data)
	}
	return norm, nil
}
