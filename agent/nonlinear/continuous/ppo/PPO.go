// Package ppo implements the Proximal Policy Optimization algorithm
// with a Gaussian policy and generalized advantage estimation.
package ppo

import (
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samuelfneumann/voxelwalk/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/voxelwalk/buffer/gae"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/initwfn"
	"github.com/samuelfneumann/voxelwalk/network"
	"github.com/samuelfneumann/voxelwalk/solver"
	ts "github.com/samuelfneumann/voxelwalk/timestep"
	"github.com/samuelfneumann/voxelwalk/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// UpdateStats are the statistics of a single PPO update
type UpdateStats struct {
	Update     int
	TotalSteps int

	PolicyLoss        float64
	ValueLoss         float64
	Entropy           float64
	ApproxKL          float64
	ClipFraction      float64
	ExplainedVariance float64
	Std               float64
	FPS               float64
}

// PPO implements Proximal Policy Optimization with a clipped surrogate
// objective, following https://arxiv.org/abs/1707.06347.
//
// Data is collected by the behaviour policy for NSteps environment
// steps, possibly spanning multiple episodes, then the policy and value
// function are updated for NEpochs epochs of minibatches of BatchSize
// transitions. Episodes cut off by the end of a rollout or by a step
// limit are bootstrapped with the value of their last state.
//
// Clipping is implemented with a mask: the gradient of the clipped
// surrogate min(r A, clip(r, 1-ε, 1+ε) A) is the gradient of r A for
// samples where the ratio r is not clipped and zero elsewhere. Ratios
// are computed before each gradient step by a forward only copy of the
// training policy.
type PPO struct {
	config Config
	runID  uuid.UUID

	features   int
	actionDims int

	// Policy
	behaviour    *policy.GaussianMLP // Selects actions, batch size 1
	trainPolicy  *policy.GaussianMLP // Learned, batch size BatchSize
	evalPolicy   *policy.GaussianMLP // Computes ratios, batch size BatchSize
	policyVM     G.VM
	policySolver *solver.Solver
	oldLogProb   *G.Node
	advantages   *G.Node
	clipMask     *G.Node

	// State value critic
	valueFn      network.NeuralNet
	valueVM      G.VM
	trainValueFn network.NeuralNet
	trainValueVM G.VM
	valueTargets *G.Node
	valueSolver  *solver.Solver
	valueLossVal G.Value

	buffer *gae.Buffer
	rng    *rand.Rand

	prevStep    ts.TimeStep
	lastLogProb float64
	eval        bool

	updates    int
	totalSteps int
	start      time.Time

	// OnUpdate, if not nil, is called with the statistics of each
	// update
	OnUpdate func(UpdateStats)
}

// weights are the learned weights of a PPO agent
type weights struct {
	Policy [][]float64
	Value  [][]float64
}

// New creates and returns a new PPO agent acting in env
func New(env environment.Environment, c Config, seed uint64) (*PPO, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("new: actions must be continuous")
	}
	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	p, err := newPPO(features, actionDims, c, seed, nil)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return p, nil
}

// newPPO creates a new PPO agent. If w is not nil, the networks are
// initialized with w.
func newPPO(features, actionDims int, c Config, seed uint64,
	w *weights) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	init, err := initwfn.Parse(c.Init, c.InitGain)
	if err != nil {
		return nil, err
	}
	batch := c.BatchSize

	// Create the training policy
	trainPolicy, err := policy.NewGaussianMLP(features, actionDims, batch,
		c.PolicyLayers, activations(c.Activation, len(c.PolicyLayers)),
		init.InitWFn(), c.InitLogStd, seed)
	if err != nil {
		return nil, err
	}
	if w != nil {
		if err := trainPolicy.SetWeights(w.Policy); err != nil {
			return nil, fmt.Errorf("policy weights: %w", err)
		}
	}

	// Create the behaviour and ratio policies
	behaviour, err := trainPolicy.CloneWithBatch(1)
	if err != nil {
		return nil, err
	}
	evalPolicy, err := trainPolicy.CloneWithBatch(batch)
	if err != nil {
		return nil, err
	}

	// Clipped surrogate objective
	g := trainPolicy.Graph()
	oldLogProb := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("oldLogProb"), G.WithInit(G.Zeroes()))
	advantages := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("advantages"), G.WithInit(G.Zeroes()))
	clipMask := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("clipMask"), G.WithInit(G.Ones()))

	ratio := G.Must(G.Exp(G.Must(G.Sub(trainPolicy.LogPdfNode(), oldLogProb))))
	surrogate := G.Must(G.HadamardProd(ratio, advantages))
	surrogate = G.Must(G.HadamardProd(surrogate, clipMask))
	policyLoss := G.Must(G.Neg(G.Must(G.Mean(surrogate))))
	if c.EntCoef > 0 {
		entCoef := G.NewConstant(c.EntCoef, G.WithName("entCoef"))
		bonus := G.Must(G.Mul(trainPolicy.EntropyNode(), entCoef))
		policyLoss = G.Must(G.Sub(policyLoss, bonus))
	}
	if _, err := G.Grad(policyLoss, trainPolicy.Learnables()...); err != nil {
		return nil, fmt.Errorf("policy gradient: %w", err)
	}
	policyVM := G.NewTapeMachine(g,
		G.BindDualValues(trainPolicy.Learnables()...))

	// Create the training value function
	biases := make([]bool, len(c.ValueLayers))
	for i := range biases {
		biases[i] = true
	}
	trainValueFn, err := network.NewSingleHeadMLP(features, batch,
		G.NewGraph(), c.ValueLayers, biases, init.InitWFn(),
		activations(c.Activation, len(c.ValueLayers)), "value")
	if err != nil {
		return nil, err
	}
	if w != nil {
		if err := trainValueFn.SetWeights(w.Value); err != nil {
			return nil, fmt.Errorf("value weights: %w", err)
		}
	}
	valueFn, err := trainValueFn.CloneWithBatch(1)
	if err != nil {
		return nil, err
	}

	valueTargets := G.NewMatrix(
		trainValueFn.Graph(),
		tensor.Float64,
		G.WithShape(trainValueFn.Prediction().Shape()...),
		G.WithName("valueTargets"),
		G.WithInit(G.Zeroes()),
	)
	valueLoss := G.Must(G.Sub(trainValueFn.Prediction(), valueTargets))
	valueLoss = G.Must(G.Square(valueLoss))
	valueLoss = G.Must(G.Mean(valueLoss))

	p := &PPO{
		config:     c,
		runID:      uuid.New(),
		features:   features,
		actionDims: actionDims,

		behaviour:   behaviour,
		trainPolicy: trainPolicy,
		evalPolicy:  evalPolicy,
		policyVM:    policyVM,
		oldLogProb:  oldLogProb,
		advantages:  advantages,
		clipMask:    clipMask,

		valueFn:      valueFn,
		valueVM:      G.NewTapeMachine(valueFn.Graph()),
		trainValueFn: trainValueFn,
		valueTargets: valueTargets,

		buffer: gae.New(features, actionDims, c.NSteps, c.Lambda, c.Gamma),
		rng:    rand.New(rand.NewSource(seed)),
		start:  time.Now(),
	}
	G.Read(valueLoss, &p.valueLossVal)

	vfCoef := G.NewConstant(c.VFCoef, G.WithName("vfCoef"))
	scaledValueLoss := G.Must(G.Mul(valueLoss, vfCoef))
	if _, err := G.Grad(scaledValueLoss, trainValueFn.Learnables()...); err != nil {
		return nil, fmt.Errorf("value gradient: %w", err)
	}
	p.trainValueVM = G.NewTapeMachine(trainValueFn.Graph(),
		G.BindDualValues(trainValueFn.Learnables()...))

	if p.policySolver, err = c.newSolver(); err != nil {
		return nil, err
	}
	if p.valueSolver, err = c.newSolver(); err != nil {
		return nil, err
	}

	return p, nil
}

// RunID returns the identifier of the training run that produced the
// agent
func (p *PPO) RunID() uuid.UUID {
	return p.runID
}

// Config returns the configuration of the agent
func (p *PPO) Config() Config {
	return p.config
}

// Features returns the dimension of observations the agent acts on
func (p *PPO) Features() int {
	return p.features
}

// ActionDims returns the dimension of actions the agent selects
func (p *PPO) ActionDims() int {
	return p.actionDims
}

// Updates returns the number of updates performed
func (p *PPO) Updates() int {
	return p.updates
}

// SelectAction returns an action at the given timestep. In training
// mode the action is sampled from the policy, in evaluation mode the
// mean action is selected. Actions are not clipped to the action
// bounds, environments clip actions.
func (p *PPO) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	obs := t.Observation.RawVector().Data
	action, logProb, err := p.behaviour.Act(obs, p.eval)
	if err != nil {
		return nil, fmt.Errorf("selectAction: %w", err)
	}
	p.lastLogProb = logProb
	return mat.NewVecDense(p.actionDims, action), nil
}

// EndEpisode performs cleanup at the end of an episode.
func (p *PPO) EndEpisode() {}

// Eval sets the algorithm into evaluation mode
func (p *PPO) Eval() { p.eval = true }

// Train sets the algorithm into training mode
func (p *PPO) Train() { p.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (p *PPO) IsEval() bool { return p.eval }

// ObserveFirst observes and records information about the first
// timestep in an episode.
func (p *PPO) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	p.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. The action must be the action last returned by
// SelectAction.
func (p *PPO) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if p.eval {
		p.prevStep = nextStep
		return nil
	}
	if action.Len() != p.actionDims {
		return fmt.Errorf("observe: expected action of length %v, got %v",
			p.actionDims, action.Len())
	}

	obs := p.prevStep.Observation.RawVector().Data
	v, err := p.value(obs)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}

	act := make([]float64, action.Len())
	for i := range act {
		act[i] = action.AtVec(i)
	}
	err = p.buffer.Store(obs, act, p.lastLogProb, nextStep.Reward, v)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	p.totalSteps++

	// Update obs (critical!)
	p.prevStep = nextStep

	switch {
	case nextStep.TerminalEnd():
		p.buffer.FinishPath(0.0)

	case nextStep.Last() || p.buffer.Full():
		// Bootstrap truncated episodes and episodes cut off by the end
		// of the rollout
		lastVal, err := p.value(nextStep.Observation.RawVector().Data)
		if err != nil {
			return fmt.Errorf("observe: %w", err)
		}
		p.buffer.FinishPath(lastVal)
	}
	return nil
}

// value returns the state value prediction of obs
func (p *PPO) value(obs []float64) (float64, error) {
	if err := p.valueFn.SetInput(obs); err != nil {
		return 0, err
	}
	defer p.valueVM.Reset()
	if err := p.valueVM.RunAll(); err != nil {
		return 0, err
	}
	v := p.valueFn.Output().Data().([]float64)
	if len(v) != 1 {
		return 0, fmt.Errorf("value: multiple values predicted for state")
	}
	return v[0], nil
}

// Step updates the agent once a full rollout has been collected. If the
// agent is in evaluation mode, then this function simply returns.
func (p *PPO) Step() error {
	if p.eval || !p.buffer.Full() {
		return nil
	}
	if err := p.update(); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	return nil
}

// update performs NEpochs epochs of minibatch updates on the data in
// the buffer
func (p *PPO) update() error {
	data, err := p.buffer.Get()
	if err != nil {
		return err
	}
	n := data.Len()
	batch := p.config.BatchSize
	clipRange := p.config.ClipRange

	obs := make([]float64, batch*p.features)
	act := make([]float64, batch*p.actionDims)
	oldLogProb := make([]float64, batch)
	adv := make([]float64, batch)
	ret := make([]float64, batch)
	mask := make([]float64, batch)

	var policyLosses, valueLosses, approxKLs []float64
	clipped := 0
	for epoch := 0; epoch < p.config.NEpochs; epoch++ {
		indices := p.rng.Perm(n)
		for start := 0; start+batch <= n; start += batch {
			for j, idx := range indices[start : start+batch] {
				copy(obs[j*p.features:(j+1)*p.features],
					data.Obs[idx*p.features:(idx+1)*p.features])
				copy(act[j*p.actionDims:(j+1)*p.actionDims],
					data.Act[idx*p.actionDims:(idx+1)*p.actionDims])
				oldLogProb[j] = data.LogProb[idx]
				adv[j] = data.Adv[idx]
				ret[j] = data.Ret[idx]
			}

			// Probability ratios under the current policy
			if err := p.evalPolicy.Set(p.trainPolicy); err != nil {
				return err
			}
			logProb, err := p.evalPolicy.LogProb(obs, act)
			if err != nil {
				return err
			}

			loss := 0.0
			kl := 0.0
			for j := range mask {
				logRatio := logProb[j] - oldLogProb[j]
				r := math.Exp(logRatio)
				rClip := floatutils.Clip(r, 1-clipRange, 1+clipRange)
				loss -= math.Min(r*adv[j], rClip*adv[j])
				kl += (r - 1) - logRatio

				if (adv[j] >= 0 && r > 1+clipRange) ||
					(adv[j] < 0 && r < 1-clipRange) {
					mask[j] = 0
				} else {
					mask[j] = 1
				}
				if math.Abs(r-1) > clipRange {
					clipped++
				}
			}
			policyLosses = append(policyLosses, loss/float64(batch))
			approxKLs = append(approxKLs, kl/float64(batch))

			if err := p.policyStep(obs, act, oldLogProb, adv, mask); err != nil {
				return err
			}
			valueLoss, err := p.valueStep(obs, ret)
			if err != nil {
				return err
			}
			valueLosses = append(valueLosses, valueLoss)
		}
	}

	// Update behaviour policy and prediction value function
	if err := p.behaviour.Set(p.trainPolicy); err != nil {
		return err
	}
	if err := p.valueFn.Set(p.trainValueFn); err != nil {
		return err
	}
	p.updates++

	stats := UpdateStats{
		Update:            p.updates,
		TotalSteps:        p.totalSteps,
		PolicyLoss:        stat.Mean(policyLosses, nil),
		ValueLoss:         stat.Mean(valueLosses, nil),
		ApproxKL:          stat.Mean(approxKLs, nil),
		ClipFraction:      float64(clipped) / float64(len(policyLosses)*batch),
		ExplainedVariance: explainedVariance(data.Val, data.Ret),
		FPS:               float64(p.totalSteps) / time.Since(p.start).Seconds(),
	}
	logStd := p.trainPolicy.LogStd()
	stats.Entropy = float64(len(logStd))*(0.5+0.5*math.Log(2*math.Pi)) +
		floats.Sum(logStd)
	for _, l := range logStd {
		stats.Std += math.Exp(l) / float64(len(logStd))
	}

	if p.config.Verbose > 0 {
		log.Printf("update %d | steps %d | fps %.0f | policy loss %.4f | "+
			"value loss %.4f | entropy %.3f | approx kl %.5f | "+
			"clip fraction %.3f | explained variance %.3f | std %.3f",
			stats.Update, stats.TotalSteps, stats.FPS, stats.PolicyLoss,
			stats.ValueLoss, stats.Entropy, stats.ApproxKL,
			stats.ClipFraction, stats.ExplainedVariance, stats.Std)
	}
	if p.OnUpdate != nil {
		p.OnUpdate(stats)
	}
	return nil
}

// policyStep takes a single gradient step on the clipped surrogate
// objective
func (p *PPO) policyStep(obs, act, oldLogProb, adv, mask []float64) error {
	inputs := map[*G.Node][]float64{
		p.oldLogProb: oldLogProb,
		p.advantages: adv,
		p.clipMask:   mask,
	}
	for node, data := range inputs {
		t := tensor.New(tensor.WithShape(node.Shape()...),
			tensor.WithBacking(append([]float64{}, data...)))
		if err := G.Let(node, t); err != nil {
			return err
		}
	}
	if err := p.trainPolicy.SetInputs(obs, act); err != nil {
		return err
	}

	defer p.policyVM.Reset()
	if err := p.policyVM.RunAll(); err != nil {
		return err
	}
	return p.policySolver.Step(p.trainPolicy.Model())
}

// valueStep takes a single gradient step on the value function loss
// and returns the loss before the step
func (p *PPO) valueStep(obs, ret []float64) (float64, error) {
	if err := p.trainValueFn.SetInput(obs); err != nil {
		return 0, err
	}
	targets := tensor.New(tensor.WithShape(p.valueTargets.Shape()...),
		tensor.WithBacking(append([]float64{}, ret...)))
	if err := G.Let(p.valueTargets, targets); err != nil {
		return 0, err
	}

	defer p.trainValueVM.Reset()
	if err := p.trainValueVM.RunAll(); err != nil {
		return 0, err
	}
	loss := p.valueLossVal.Data().(float64)
	if err := p.valueSolver.Step(p.trainValueFn.Model()); err != nil {
		return 0, err
	}
	return loss, nil
}

// explainedVariance returns 1 - Var[y - pred] / Var[y]
func explainedVariance(pred, y []float64) float64 {
	varY := stat.Variance(y, nil)
	if varY == 0 {
		return math.NaN()
	}
	diff := make([]float64, len(y))
	floats.SubTo(diff, y, pred)
	return 1 - stat.Variance(diff, nil)/varY
}

// Close closes the agent's VMs
func (p *PPO) Close() error {
	var errs []error
	for _, vm := range []G.VM{p.policyVM, p.valueVM, p.trainValueVM} {
		errs = append(errs, vm.Close())
	}
	errs = append(errs, p.behaviour.Close(), p.evalPolicy.Close())
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("close: %w", err)
		}
	}
	return nil
}
