package morphology

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultWeights are the sampling weights of voxel codes Empty through
// VerticalActuator. Fixed voxels are never sampled.
var DefaultWeights = []float64{0.6, 0.2, 0.2, 0.2, 0.2}

// maxTries bounds the number of rejected bodies before Sample gives up
const maxTries = 100_000

// Sample draws a random body of the given shape with voxels sampled
// independently according to DefaultWeights. Bodies are redrawn until
// they are connected and have at least one actuator. The returned robot
// has full connectivity.
func Sample(rows, cols int, src rand.Source) (Robot, error) {
	return SampleWeighted(rows, cols, DefaultWeights, src)
}

// SampleWeighted is like Sample but uses custom voxel weights. Weights
// need not be normalised.
func SampleWeighted(rows, cols int, weights []float64,
	src rand.Source) (Robot, error) {
	if rows <= 0 || cols <= 0 {
		return Robot{}, fmt.Errorf("sample: invalid body shape %vx%v",
			rows, cols)
	}
	if len(weights) == 0 || len(weights) > int(Fixed)+1 {
		return Robot{}, fmt.Errorf("sample: expected between 1 and %d "+
			"weights, got %d", int(Fixed)+1, len(weights))
	}
	actuatorWeight := 0.0
	for i, w := range weights {
		if w < 0 {
			return Robot{}, fmt.Errorf("sample: negative weight %v", w)
		}
		if Voxel(i).Actuator() {
			actuatorWeight += w
		}
	}
	if actuatorWeight == 0 {
		return Robot{}, fmt.Errorf("sample: weights never produce an " +
			"actuator")
	}

	dist := distuv.NewCategorical(weights, src)
	for try := 0; try < maxTries; try++ {
		body := NewBody(rows, cols)
		for i := range body.Voxels {
			body.Voxels[i] = Voxel(dist.Rand())
		}

		if body.Connected() && body.Actuators() > 0 {
			return Robot{Body: body, Connections: FullConnectivity(body)}, nil
		}
	}
	return Robot{}, fmt.Errorf("sample: no valid body after %d tries", maxTries)
}
