package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// RunningMeanStd tracks the running mean and variance of a stream of
// vectors using the parallel algorithm of Chan et al., see
// https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance
type RunningMeanStd struct {
	Mean  []float64
	Var   []float64
	Count float64
}

// NewRunningMeanStd returns a new RunningMeanStd over vectors of size
// dims. The count starts at epsilon so that the first update is not
// a division by zero.
func NewRunningMeanStd(dims int, epsilon float64) *RunningMeanStd {
	v := make([]float64, dims)
	for i := range v {
		v[i] = 1.0
	}
	return &RunningMeanStd{
		Mean:  make([]float64, dims),
		Var:   v,
		Count: epsilon,
	}
}

// Dims returns the size of tracked vectors
func (r *RunningMeanStd) Dims() int {
	return len(r.Mean)
}

// Update adds a single sample x to the running statistics
func (r *RunningMeanStd) Update(x []float64) error {
	if len(x) != len(r.Mean) {
		return fmt.Errorf("update: expected sample of size %v, got %v",
			len(r.Mean), len(x))
	}

	totalCount := r.Count + 1
	for i := range r.Mean {
		delta := x[i] - r.Mean[i]
		newMean := r.Mean[i] + delta/totalCount

		// Merge with a batch of one sample, which has zero variance
		m2 := r.Var[i]*r.Count + delta*delta*r.Count/totalCount
		r.Mean[i] = newMean
		r.Var[i] = m2 / totalCount
	}
	r.Count = totalCount
	return nil
}

// Copy returns a deep copy of r
func (r *RunningMeanStd) Copy() *RunningMeanStd {
	return &RunningMeanStd{
		Mean:  append([]float64{}, r.Mean...),
		Var:   append([]float64{}, r.Var...),
		Count: r.Count,
	}
}

// Equal returns whether r and other hold the same statistics
func (r *RunningMeanStd) Equal(other *RunningMeanStd) bool {
	return r.Count == other.Count && floats.Equal(r.Mean, other.Mean) &&
		floats.Equal(r.Var, other.Var)
}
