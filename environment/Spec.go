package environment

import (
	"fmt"

	"github.com/samuelfneumann/voxelwalk/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

func (s SpecType) String() string {
	switch s {
	case Action:
		return "Action"
	case Observation:
		return "Observation"
	case Discount:
		return "Discount"
	default:
		return "Reward"
	}
}

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match upper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// NewBoxSpec returns a continuous Spec of dims elements, each bounded
// in [low, high]
func NewBoxSpec(dims int, t SpecType, low, high float64) Spec {
	lower := make([]float64, dims)
	upper := make([]float64, dims)
	for i := range lower {
		lower[i] = low
		upper[i] = high
	}
	return NewSpec(mat.NewVecDense(dims, nil), t, mat.NewVecDense(dims, lower),
		mat.NewVecDense(dims, upper), Continuous)
}

// Clip clips v in place to the bounds of the Spec
func (s Spec) Clip(v *mat.VecDense) {
	if v.Len() != s.Shape.Len() {
		panic(fmt.Sprintf("clip: vector length %v does not match spec length %v",
			v.Len(), s.Shape.Len()))
	}
	floatutils.ClipVec(v, s.LowerBound, s.UpperBound)
}
