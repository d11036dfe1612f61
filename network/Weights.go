package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Weights returns a copy of the values of each node
func Weights(nodes G.Nodes) [][]float64 {
	weights := make([][]float64, len(nodes))
	for i, node := range nodes {
		data := node.Value().Data().([]float64)
		weights[i] = append([]float64{}, data...)
	}
	return weights
}

// SetWeights sets the value of each node to a copy of the respective
// weights
func SetWeights(nodes G.Nodes, weights [][]float64) error {
	if len(nodes) != len(weights) {
		return fmt.Errorf("setweights: expected weights for %v nodes, "+
			"got %v", len(nodes), len(weights))
	}
	for i, node := range nodes {
		if node.Shape().TotalSize() != len(weights[i]) {
			return fmt.Errorf("setweights: node %v has %v weights, got %v",
				node.Name(), node.Shape().TotalSize(), len(weights[i]))
		}
		backing := append([]float64{}, weights[i]...)
		t := tensor.New(tensor.WithShape(node.Shape()...),
			tensor.WithBacking(backing))
		if err := G.Let(node, t); err != nil {
			return fmt.Errorf("setweights: %v", err)
		}
	}
	return nil
}
