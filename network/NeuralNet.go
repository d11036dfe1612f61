// Package network implements feed forward neural networks as
// computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network built on a gorgonia computational
// graph. The input node has a fixed batch size, networks for other
// batch sizes are created with CloneWithBatch and kept in sync with
// Set.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node

	// Weights returns a copy of the weights of each learnable node
	Weights() [][]float64

	// SetWeights sets the weights of each learnable node
	SetWeights([][]float64) error
}
