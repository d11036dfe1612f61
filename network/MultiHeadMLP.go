package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// multiHeadMLP implements a multi-layered perceptron with multiple
// output nodes, one for each value that should be predicted.
type multiHeadMLP struct {
	g          *G.ExprGraph
	name       string
	layers     []*fcLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for gobbing
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that has multiple output nodes, The number of outputs nodes is equal
// to outputs. The graph parameter g is populated with the MLP, and all
// nodes of the MLP are named with name as a prefix.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// layer is always added such that given any input, the output will
// be outputs. The final layer also contains a bias unit, and bias units
// for each additional hidden layer is specified by biases. The final
// layer will contain no activations, and the activations of additional
// hidden layers is specified by activations. The parameter init
// determines the weight initialization scheme.
//
// The function works such that for index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the
// hidden layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, name string) (NeuralNet, error) {

	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newmultiheadmlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newmultiheadmlp: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	if features <= 0 || batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newmultiheadmlp: features (%v), batch (%v) "+
			"and outputs (%v) must be positive", features, batch, outputs)
	}

	input := newInput(g, batch, features, name)

	// Add a final linear layer with no activation to ensure
	// outputs heads are predicted by the network
	sizes := append(append([]int{}, hiddenSizes...), outputs)
	layerBiases := append(append([]bool{}, biases...), true)
	layerActs := append(append([]*Activation{}, activations...), Identity())

	layers := addfcLayers(g, sizes, layerBiases, layerActs, init, features,
		name)

	// Create the network and run the forward pass on the input node
	network := multiHeadMLP{
		g:           g,
		name:        name,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	_, err := network.fwd(input)
	if err != nil {
		msg := "newmultiheadmlp: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// newInput adds the input node of an MLP to g
func newInput(g *G.ExprGraph, batch, features int, name string) *G.Node {
	return G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(name+"Input"), G.WithInit(G.Zeroes()))
}

// Graph returns the computational graph of the multiHeadMLP.
func (e *multiHeadMLP) Graph() *G.ExprGraph {
	return e.g
}

// CloneWithBatch clones a multiHeadMLP to a new computational graph
// with a new input batch size.
func (e *multiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("clonewithbatch: batch size must be "+
			"positive, got %v", batchSize)
	}
	graph := G.NewGraph()

	input := newInput(graph, batchSize, e.numInputs, e.name)

	// Copy fully connected layers
	l := make([]*fcLayer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	network := multiHeadMLP{
		g:           graph,
		name:        e.name,
		layers:      l,
		input:       input,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
	}
	_, err := network.fwd(input)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *multiHeadMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *multiHeadMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *multiHeadMLP) Outputs() int {
	return e.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *multiHeadMLP) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of a multiHeadMLP to be equal to the
// weights of another multiHeadMLP
func (dest *multiHeadMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: cannot set network with %v learnables "+
			"from network with %v learnables", len(nodes), len(sourceNodes))
	}
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a multiHeadMLP
func (m *multiHeadMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		m.learnables = m.computeLearnables()
	}
	return m.learnables
}

// computeLearnables computes all the learnables for the network
func (e *multiHeadMLP) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(e.layers))

	for i := range e.layers {
		learnables = append(learnables, e.layers[i].weights)
		if bias := e.layers[i].bias; bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// Model returns the learnables nodes with their gradients.
func (m *multiHeadMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if m.model == nil {
		m.model = m.computeModel()
	}
	return m.model
}

// computeModel computes the model for the network
func (e *multiHeadMLP) computeModel() []G.ValueGrad {
	model := make([]G.ValueGrad, 0, 2*len(e.layers))
	for _, node := range e.Learnables() {
		model = append(model, node)
	}
	return model
}

// Weights returns a copy of the weights of each learnable node, in
// the order returned by Learnables
func (e *multiHeadMLP) Weights() [][]float64 {
	return Weights(e.Learnables())
}

// SetWeights sets the weights of each learnable node, in the order
// returned by Learnables
func (e *multiHeadMLP) SetWeights(weights [][]float64) error {
	return SetWeights(e.Learnables(), weights)
}

// fwd performs the forward pass of the multiHeadMLP on the input
// node
func (e *multiHeadMLP) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape%e.numInputs != 0 {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred

	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the multiHeadMLP, valid after the
// graph has been run by a VM.
func (e *multiHeadMLP) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph the stores
// the output of the multiHeadMLP
func (e *multiHeadMLP) Prediction() *G.Node {
	return e.prediction
}

// mlpArchive is the gob representation of a multiHeadMLP
type mlpArchive struct {
	Name        string
	Outputs     int
	Inputs      int
	BatchSize   int
	HiddenSizes []int
	Biases      []bool
	Activations []*Activation
	Weights     [][]float64
}

// GobEncode implements the gob.GobEncoder interface
func (e *multiHeadMLP) GobEncode() ([]byte, error) {
	archive := mlpArchive{
		Name:        e.name,
		Outputs:     e.numOutputs,
		Inputs:      e.numInputs,
		BatchSize:   e.batchSize,
		HiddenSizes: e.hiddenSizes,
		Biases:      e.biases,
		Activations: e.activations,
		Weights:     e.Weights(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(archive); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode mlp: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The network is
// rebuilt on a new computational graph owned by the receiver.
func (e *multiHeadMLP) GobDecode(in []byte) error {
	var archive mlpArchive
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&archive); err != nil {
		return fmt.Errorf("gobdecode: could not decode mlp: %v", err)
	}
	if len(archive.HiddenSizes) != len(archive.Biases) ||
		len(archive.HiddenSizes) != len(archive.Activations) {
		return fmt.Errorf("gobdecode: %v hidden layers with %v biases and "+
			"%v activations", len(archive.HiddenSizes), len(archive.Biases),
			len(archive.Activations))
	}
	if archive.Inputs <= 0 || archive.BatchSize <= 0 || archive.Outputs <= 0 {
		return fmt.Errorf("gobdecode: invalid shape %v inputs, %v outputs, "+
			"batch %v", archive.Inputs, archive.Outputs, archive.BatchSize)
	}

	g := G.NewGraph()
	sizes := append(append([]int{}, archive.HiddenSizes...), archive.Outputs)
	layerBiases := append(append([]bool{}, archive.Biases...), true)
	layerActs := append(append([]*Activation{}, archive.Activations...),
		Identity())
	layers := addfcLayers(g, sizes, layerBiases, layerActs, G.Zeroes(),
		archive.Inputs, archive.Name)
	input := newInput(g, archive.BatchSize, archive.Inputs, archive.Name)

	// The forward pass must run on the receiver so that the graph
	// writes its output into e.predVal
	*e = multiHeadMLP{
		g:           g,
		name:        archive.Name,
		layers:      layers,
		input:       input,
		numOutputs:  archive.Outputs,
		numInputs:   archive.Inputs,
		batchSize:   archive.BatchSize,
		hiddenSizes: archive.HiddenSizes,
		biases:      archive.Biases,
		activations: archive.Activations,
	}
	if _, err := e.fwd(e.input); err != nil {
		return fmt.Errorf("gobdecode: could not compute forward pass: %v", err)
	}

	if err := e.SetWeights(archive.Weights); err != nil {
		return fmt.Errorf("gobdecode: %v", err)
	}
	return nil
}
