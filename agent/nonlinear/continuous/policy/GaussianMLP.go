package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/voxelwalk/network"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// logSqrt2Pi is log(√(2π)), the normalizing constant of the log
// density of a standard normal
var logSqrt2Pi = 0.5 * math.Log(2*math.Pi)

// GaussianMLP implements a Gaussian policy with a diagonal covariance.
// The mean of the policy is predicted by an MLP, and the log standard
// deviation is a learnable vector which does not depend on the state.
//
// Given a nework prediction of the mean μ and the log standard
// deviation log(σ), actions are selected by sampling from the
// standard normal ɛ ~ N(0, 1) and computing action := μ + σ * ɛ. In
// evaluation mode, the mean action μ is selected.
//
// The computational graph of a GaussianMLP also computes the log
// density of a batch of input actions in a batch of input states and
// the entropy of the policy, from which policy gradients can be
// constructed.
type GaussianMLP struct {
	net    network.NeuralNet
	logStd *G.Node

	actions     *G.Node
	logPdfNode  *G.Node
	entropyNode *G.Node

	vm G.VM

	meanVal   G.Value
	logPdfVal G.Value

	hiddenSizes []int
	activations []*network.Activation
	actionDims  int
	seed        uint64

	normal distuv.Normal
	eval   bool
}

// NewGaussianMLP returns a new GaussianMLP which takes batch
// observations of features features each and predicts actions of
// actionDims dimensions. The mean network has hidden layers given by
// hiddenSizes and activations, and its weights are initialized with
// init. Each dimension of the log standard deviation is initialized to
// initLogStd. The seed determines the seed of the action sampler.
func NewGaussianMLP(features, actionDims, batch int, hiddenSizes []int,
	activations []*network.Activation, init G.InitWFn, initLogStd float64,
	seed uint64) (*GaussianMLP, error) {
	biases := make([]bool, len(hiddenSizes))
	for i := range biases {
		biases[i] = true
	}

	g := G.NewGraph()
	net, err := network.NewMultiHeadMLP(features, batch, actionDims, g,
		hiddenSizes, biases, init, activations, "policy")
	if err != nil {
		return nil, fmt.Errorf("newGaussianMLP: %v", err)
	}

	logStd := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, actionDims),
		G.WithName("policyLogStd"),
		G.WithInit(G.ValuesOf(initLogStd)),
	)

	return newGaussianMLP(net, logStd, hiddenSizes, activations, seed)
}

// newGaussianMLP adds the action selection, log density, and entropy
// nodes to the graph of net and logStd and returns the resulting
// policy
func newGaussianMLP(net network.NeuralNet, logStd *G.Node,
	hiddenSizes []int, activations []*network.Activation,
	seed uint64) (*GaussianMLP, error) {
	g := net.Graph()
	if logStd.Graph() != g {
		return nil, fmt.Errorf("newGaussianMLP: log standard deviation " +
			"must share the graph of the mean network")
	}
	actionDims := net.Outputs()
	mean := net.Prediction()

	actions := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName("policyInputActions"),
		G.WithShape(net.BatchSize(), actionDims),
		G.WithInit(G.Zeroes()),
	)

	pol := &GaussianMLP{
		net:         net,
		logStd:      logStd,
		actions:     actions,
		logPdfNode:  logPdf(mean, logStd, actions),
		entropyNode: entropy(logStd),
		hiddenSizes: hiddenSizes,
		activations: activations,
		actionDims:  actionDims,
		seed:        seed,
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
	}

	// Record values of Gorgonia nodes
	G.Read(mean, &pol.meanVal)
	G.Read(pol.logPdfNode, &pol.logPdfVal)

	return pol, nil
}

// logPdf adds nodes to the computational graph for computing the log
// density of actions under the Gaussian with mean mean and log standard
// deviation logStd. The mean and actions have shape (batch, actionDims)
// and logStd has shape (1, actionDims). The returned node is a vector
// of log densities, one per row of actions.
//
//	log π(a|s) = Σᵢ [ -½ ((aᵢ - μᵢ) / σᵢ)² - log(σᵢ) - log(√(2π)) ]
func logPdf(mean, logStd, actions *G.Node) *G.Node {
	actionDims := float64(mean.Shape()[1])

	std := G.Must(G.Exp(logStd))
	diff := G.Must(G.Sub(actions, mean))
	z := G.Must(G.BroadcastHadamardDiv(diff, std, nil, []byte{0}))

	negHalf := G.NewConstant(-0.5, G.WithName("policyNegHalf"))
	logDensity := G.Must(G.Mul(G.Must(G.Square(z)), negHalf))
	logDensity = G.Must(G.BroadcastSub(logDensity, logStd, nil, []byte{0}))
	logDensity = G.Must(G.Sum(logDensity, 1))

	normalizer := G.NewConstant(-actionDims*logSqrt2Pi,
		G.WithName("policyNormalizer"))
	return G.Must(G.Add(logDensity, normalizer))
}

// entropy adds nodes to the computational graph for computing the
// entropy of a diagonal Gaussian with log standard deviation logStd
//
//	H = Σᵢ [ log(σᵢ) + ½ + log(√(2π)) ]
func entropy(logStd *G.Node) *G.Node {
	actionDims := float64(logStd.Shape()[1])
	constant := G.NewConstant(actionDims*(0.5+logSqrt2Pi),
		G.WithName("policyEntropyConstant"))
	return G.Must(G.Add(G.Must(G.Sum(logStd)), constant))
}

// CloneWithBatch clones the policy to a new computational graph with
// a new batch size. Only the weights are cloned, the action sampler of
// the clone is seeded with the seed of the original policy.
func (g *GaussianMLP) CloneWithBatch(batch int) (*GaussianMLP, error) {
	net, err := g.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	logStd := g.logStd.CloneTo(net.Graph())

	return newGaussianMLP(net, logStd, g.hiddenSizes, g.activations, g.seed)
}

// Network returns the network predicting the mean of the policy
func (g *GaussianMLP) Network() network.NeuralNet {
	return g.net
}

// BatchSize returns the batch size of the policy
func (g *GaussianMLP) BatchSize() int {
	return g.net.BatchSize()
}

// Features returns the number of features of an observation
func (g *GaussianMLP) Features() int {
	return g.net.Features()
}

// ActionDims returns the number of action dimensions
func (g *GaussianMLP) ActionDims() int {
	return g.actionDims
}

// Graph returns the computational graph of the policy
func (g *GaussianMLP) Graph() *G.ExprGraph {
	return g.net.Graph()
}

// Learnables returns the learnable nodes of the policy: those of the
// mean network followed by the log standard deviation
func (g *GaussianMLP) Learnables() G.Nodes {
	learnables := append(G.Nodes{}, g.net.Learnables()...)
	return append(learnables, g.logStd)
}

// Model returns the learnable nodes of the policy with their gradients
func (g *GaussianMLP) Model() []G.ValueGrad {
	learnables := g.Learnables()
	model := make([]G.ValueGrad, len(learnables))
	for i := range learnables {
		model[i] = learnables[i]
	}
	return model
}

// Weights returns a copy of the weights of the policy
func (g *GaussianMLP) Weights() [][]float64 {
	return network.Weights(g.Learnables())
}

// SetWeights sets the weights of the policy
func (g *GaussianMLP) SetWeights(weights [][]float64) error {
	if err := network.SetWeights(g.Learnables(), weights); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	return nil
}

// Set sets the weights of the policy to those of source
func (g *GaussianMLP) Set(source *GaussianMLP) error {
	return g.SetWeights(source.Weights())
}

// LogStd returns a copy of the log standard deviation of the policy
func (g *GaussianMLP) LogStd() []float64 {
	return append([]float64{}, g.logStd.Value().Data().([]float64)...)
}

// LogPdfNode returns the node computing the log density of the input
// actions in the input states
func (g *GaussianMLP) LogPdfNode() *G.Node {
	return g.logPdfNode
}

// EntropyNode returns the node computing the entropy of the policy
func (g *GaussianMLP) EntropyNode() *G.Node {
	return g.entropyNode
}

// SetInputs sets the states and actions of which the graph computes
// the log density. Inputs are given in row major order.
func (g *GaussianMLP) SetInputs(states, actions []float64) error {
	if len(actions) != g.BatchSize()*g.actionDims {
		return fmt.Errorf("setInputs: invalid number of actions\n\twant(%v)"+
			"\n\thave(%v)", g.BatchSize()*g.actionDims, len(actions))
	}
	if err := g.net.SetInput(states); err != nil {
		return fmt.Errorf("setInputs: %v", err)
	}

	actionTensor := tensor.New(
		tensor.WithShape(g.actions.Shape()...),
		tensor.WithBacking(append([]float64{}, actions...)),
	)
	if err := G.Let(g.actions, actionTensor); err != nil {
		return fmt.Errorf("setInputs: %v", err)
	}
	return nil
}

// forward runs the policy's own VM, computing the mean and the log
// density of the input actions
func (g *GaussianMLP) forward() error {
	if g.vm == nil {
		g.vm = G.NewTapeMachine(g.net.Graph())
	}
	defer g.vm.Reset()
	return g.vm.RunAll()
}

// LogProb returns the log density of each of the actions in the
// respective state. Inputs are given in row major order and must fill
// the batch of the policy.
func (g *GaussianMLP) LogProb(states, actions []float64) ([]float64, error) {
	if err := g.SetInputs(states, actions); err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}
	if err := g.forward(); err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}
	return append([]float64{}, g.logPdfVal.Data().([]float64)...), nil
}

// Act selects an action in a single state, returning the action and
// its log density under the policy. If deterministic is true, the
// mean action is selected. The policy must have a batch size of 1.
func (g *GaussianMLP) Act(obs []float64, deterministic bool) ([]float64,
	float64, error) {
	if g.BatchSize() != 1 {
		return nil, 0, fmt.Errorf("act: cannot select actions with a "+
			"batch policy (batch size %v)", g.BatchSize())
	}
	if err := g.net.SetInput(obs); err != nil {
		return nil, 0, fmt.Errorf("act: %v", err)
	}
	if err := g.forward(); err != nil {
		return nil, 0, fmt.Errorf("act: %v", err)
	}

	mean := g.meanVal.Data().([]float64)
	logStd := g.logStd.Value().Data().([]float64)

	action := make([]float64, g.actionDims)
	logProb := 0.0
	for i := range action {
		eps := 0.0
		if !deterministic {
			eps = g.normal.Rand()
		}
		action[i] = mean[i] + math.Exp(logStd[i])*eps
		logProb += -0.5*eps*eps - logStd[i] - logSqrt2Pi
	}
	return action, logProb, nil
}

// SelectAction selects an action at timestep t. In evaluation mode,
// the mean action is selected.
func (g *GaussianMLP) SelectAction(t timestep.TimeStep) (*mat.VecDense,
	error) {
	action, _, err := g.Act(t.Observation.RawVector().Data, g.eval)
	if err != nil {
		return nil, fmt.Errorf("selectAction: %v", err)
	}
	return mat.NewVecDense(g.actionDims, action), nil
}

// Eval sets the policy to evaluation mode
func (g *GaussianMLP) Eval() { g.eval = true }

// Train sets the policy to training mode
func (g *GaussianMLP) Train() { g.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (g *GaussianMLP) IsEval() bool { return g.eval }

// Close closes the policy's VM
func (g *GaussianMLP) Close() error {
	if g.vm == nil {
		return nil
	}
	return g.vm.Close()
}
