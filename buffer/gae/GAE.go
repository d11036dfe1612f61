// Package gae implements functionality for storing a generalized
// advantage estimate buffer
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - rollout buffer following https://arxiv.org/abs/1506.02438.
// Along with each transition, the buffer stores the log probability of
// the action under the policy that collected it so that the policy can
// be updated off of the rollout for multiple epochs.
type Buffer struct {
	obsSize    int // Size of state observations
	actionSize int // Number of action dimensions
	maxSize    int // Max buffer size

	currentPos   int // Current position in the buffer
	pathStartIdx int // Position in the buffer where current trajectory starts

	lambda float64 // λ for GAE(λ) calculation
	gamma  float64 // Discount factor ℽ; overwrites env discount factor

	// Buffers for storing data
	obsBuffer  []float64
	actBuffer  []float64
	logpBuffer []float64
	advBuffer  []float64
	rewBuffer  []float64
	retBuffer  []float64
	valBuffer  []float64
}

// Batch is the data collected in a full Buffer. Observations and
// actions are stored in row major order, one row per transition.
type Batch struct {
	Obs, Act []float64
	LogProb  []float64

	// Advantages are standardized to mean 0 and standard deviation 1
	Adv []float64

	// Ret are the λ-returns, the targets of the value function
	Ret []float64
	Val []float64
}

// Len returns the number of transitions in the batch
func (b Batch) Len() int {
	return len(b.Ret)
}

// New creates and returns a new GAE(λ) buffer
func New(obsDim, actDim, size int, lambda, gamma float64) *Buffer {
	return &Buffer{
		obsSize:    obsDim,
		actionSize: actDim,
		maxSize:    size,
		lambda:     lambda,
		gamma:      gamma,
		obsBuffer:  make([]float64, size*obsDim),
		actBuffer:  make([]float64, size*actDim),
		logpBuffer: make([]float64, size),
		advBuffer:  make([]float64, size),
		rewBuffer:  make([]float64, size),
		retBuffer:  make([]float64, size),
		valBuffer:  make([]float64, size),
	}
}

// Len returns the number of transitions stored in the buffer
func (v *Buffer) Len() int {
	return v.currentPos
}

// Full returns whether the buffer is at maximum capacity
func (v *Buffer) Full() bool {
	return v.currentPos >= v.maxSize
}

// PathLen returns the number of transitions stored for the current
// trajectory
func (v *Buffer) PathLen() int {
	return v.currentPos - v.pathStartIdx
}

// Store stores a single timestep state, action, log probability of the
// action, reward, and value to the Buffer.
func (v *Buffer) Store(obs, act []float64, logp, rew, val float64) error {
	if v.currentPos >= v.maxSize {
		return fmt.Errorf("store: cannot add new transition, buffer at " +
			"maximum capacity")
	}
	if len(obs) != v.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)\n\thave(%v)",
			v.obsSize, len(obs))
	}
	if len(act) != v.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)\n\thave(%v)",
			v.actionSize, len(act))
	}

	start := v.currentPos * v.obsSize
	copy(v.obsBuffer[start:start+v.obsSize], obs)

	start = v.currentPos * v.actionSize
	copy(v.actBuffer[start:start+v.actionSize], act)

	v.logpBuffer[v.currentPos] = logp
	v.rewBuffer[v.currentPos] = rew
	v.valBuffer[v.currentPos] = val
	v.currentPos++
	return nil
}

// FinishPath computes advatange estimates using GAE(λ) and λ-return
// estimates for each state of the current trajectory. This should be
// called at the end of a trajectory or when one gets cut off by the
// buffer filling up.
//
// The lastVal argument should be 0 if the trajectory ended because
// the agent reached a terminal state, and otherwise it should be
// v(s), the value estimate of the state after the last stored
// transition. This bootstraps the returns of trajectories that were
// truncated by a step limit or by the buffer filling up.
func (v *Buffer) FinishPath(lastVal float64) {
	start := v.pathStartIdx
	stop := v.currentPos
	if start == stop {
		return
	}

	rews := v.rewBuffer[start:stop]
	vals := make([]float64, stop-start+1)
	copy(vals, v.valBuffer[start:stop])
	vals[len(vals)-1] = lastVal

	// GAE-lambda advantage calculation
	deltas := make([]float64, len(rews))
	for i := range deltas {
		deltas[i] = rews[i] + v.gamma*vals[i+1] - vals[i]
	}
	copy(v.advBuffer[start:stop], discountCumSum(deltas, v.gamma*v.lambda))

	// λ-returns
	floats.AddTo(v.retBuffer[start:stop], v.advBuffer[start:stop],
		vals[:len(vals)-1])

	v.pathStartIdx = v.currentPos
}

// Get returns the data stored in the buffer and empties the buffer.
// The buffer must be full and all paths finished.
func (v *Buffer) Get() (Batch, error) {
	if v.currentPos != v.maxSize {
		return Batch{}, fmt.Errorf("get: buffer must be full before " +
			"sampling")
	}
	if v.pathStartIdx != v.currentPos {
		return Batch{}, fmt.Errorf("get: current path must be finished " +
			"before sampling")
	}

	v.currentPos = 0
	v.pathStartIdx = 0

	// Advantage normalization
	adv := append([]float64{}, v.advBuffer...)
	mean, std := stat.PopMeanStdDev(adv, nil)
	floats.AddConst(-mean, adv)
	floats.Scale(1/(std+1e-8), adv)

	return Batch{
		Obs:     append([]float64{}, v.obsBuffer...),
		Act:     append([]float64{}, v.actBuffer...),
		LogProb: append([]float64{}, v.logpBuffer...),
		Adv:     adv,
		Ret:     append([]float64{}, v.retBuffer...),
		Val:     append([]float64{}, v.valBuffer...),
	}, nil
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
//	[
//		x0 + ℽ x1 + ℽ^2 x2 + ... + ℽ^N xN
//		x1 + ℽ^1 x2 + ... + ℽ^(N-1) xN
//		...
//		xN
//	]
func discountCumSum(x []float64, discount float64) []float64 {
	cumSums := make([]float64, len(x))
	running := 0.0
	for i := len(x) - 1; i >= 0; i-- {
		running = x[i] + discount*running
		cumSums[i] = running
	}
	return cumSums
}
