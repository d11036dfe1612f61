// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Clip clips a floating point to within a minimum and maximum value
func Clip(value, min, max float64) float64 {
	return math.Max(math.Min(value, max), min)
}

// ClipSymmetric clips value to [-bound, bound]
func ClipSymmetric(value, bound float64) float64 {
	return Clip(value, -bound, bound)
}

// ClipVec clips each element of v in place to the matching elements of
// lo and hi
func ClipVec(v *mat.VecDense, lo, hi mat.Vector) {
	if lo.Len() != v.Len() || hi.Len() != v.Len() {
		panic("clipVec: bound length mismatch")
	}
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, Clip(v.AtVec(i), lo.AtVec(i), hi.AtVec(i)))
	}
}
