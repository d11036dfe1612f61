// Package walker provides an implementation of the Walker soft-body
// environment: a voxel robot, simulated as point masses joined by
// springs, which must walk as far as possible along flat terrain.
package walker

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/morphology"
	"github.com/samuelfneumann/voxelwalk/timestep"
	"gonum.org/v1/gonum/mat"
)

const (
	// FPS is the number of control steps per simulated second
	FPS float64 = 50

	// Physics steps per control step
	Substeps int = 4

	VelocityIterations int = 10
	PositionIterations int = 10

	XGravity float64 = 0.0
	YGravity float64 = -10.0

	// VoxelSize is the side length of a voxel in Box2D units
	VoxelSize   float64 = 0.5
	PointRadius float64 = 0.06
	PointMass   float64 = 0.05
	Friction    float64 = 1.0

	// Spring frequencies in Hz, zero means a rigid joint
	RigidFrequency    float64 = 0.0
	SoftFrequency     float64 = 4.0
	ActuatorFrequency float64 = 8.0
	DampingRatio      float64 = 0.5

	// Action bounds, as a fraction of the rest length of a voxel
	MinAction float64 = 0.6
	MaxAction float64 = 1.6

	// TerrainLength is the length of the flat terrain, in voxels
	TerrainLength float64 = 100

	// MaxRows and MaxCols bound the size of a robot body
	MaxRows int = 10
	MaxCols int = 10

	// EpisodeSteps is the default step limit of an episode
	EpisodeSteps int = 500

	// Default start position of the robot's lower left corner, in voxels
	StartX float64 = 1.0
	StartY float64 = 0.0
)

// ErrClosed is returned when stepping or resetting a closed Walker
var ErrClosed = errors.New("environment closed")

// Walker implements a voxel robot walking on flat terrain. Each
// actuator voxel of the robot takes one action in [MinAction,
// MaxAction] which scales the rest length of its actuated axis.
//
// Observations are the velocity of the robot's centre of mass followed
// by the x positions then the y positions of every point mass relative
// to the centre of mass.
type Walker struct {
	environment.Task

	robot     morphology.Robot
	voxels    []voxel
	gridPts   [][2]int
	actuators []int

	world  box2d.B2World
	ground *box2d.B2Body
	points []*box2d.B2Body
	joints [][6]*box2d.B2DistanceJoint

	com     box2d.B2Vec2
	prevCOM box2d.B2Vec2

	discount   float64
	renderMode environment.RenderMode
	viewer     environment.Viewer
	camera     float64

	prevStep timestep.TimeStep
	closed   bool
}

// New returns a new Walker for robot and the first timestep of its
// first episode. If renderMode is environment.RenderHuman and viewer
// is nil, frames are written to a PNG file in the working directory.
func New(robot morphology.Robot, task environment.Task, discount float64,
	renderMode environment.RenderMode, viewer environment.Viewer) (*Walker,
	timestep.TimeStep, error) {
	if err := robot.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %w", err)
	}
	body := robot.Body
	if body.Rows > MaxRows || body.Cols > MaxCols {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: body of shape "+
			"%vx%v exceeds maximum shape %vx%v", body.Rows, body.Cols,
			MaxRows, MaxCols)
	}
	if body.Actuators() == 0 {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: body has no " +
			"actuators")
	}
	if !body.Connected() {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: body is not " +
			"connected")
	}

	voxels, gridPts, err := layout(robot)
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %w", err)
	}

	w := &Walker{
		robot:      robot,
		voxels:     voxels,
		gridPts:    gridPts,
		discount:   discount,
		renderMode: renderMode,
		viewer:     viewer,
	}
	for i, v := range voxels {
		if v.material.Actuator() {
			w.actuators = append(w.actuators, i)
		}
	}
	if renderMode == environment.RenderHuman && w.viewer == nil {
		w.viewer = environment.NewPNGViewer(LiveFrameFile, FPS)
	}

	t, ok := task.(walkerTask)
	if ok {
		t.registerEnv(w)
	}
	w.Task = task

	step, err := w.Reset()
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %w", err)
	}
	return w, step, nil
}

// Robot returns the robot being simulated
func (w *Walker) Robot() morphology.Robot {
	return w.robot
}

// Points returns the number of point masses of the simulated robot
func (w *Walker) Points() int {
	return len(w.gridPts)
}

// Actuators returns the number of actuator voxels, the dimension of
// the action space
func (w *Walker) Actuators() int {
	return len(w.actuators)
}

// COM returns the position of the centre of mass of the robot
func (w *Walker) COM() (x, y float64) {
	return w.com.X, w.com.Y
}

// PrevCOM returns the position of the centre of mass before the last
// step
func (w *Walker) PrevCOM() (x, y float64) {
	return w.prevCOM.X, w.prevCOM.Y
}

// Reset resets the environment and returns the first timestep of the
// next episode
func (w *Walker) Reset() (timestep.TimeStep, error) {
	if w.closed {
		return timestep.TimeStep{}, fmt.Errorf("reset: %w", ErrClosed)
	}

	if t, ok := w.Task.(walkerTask); ok {
		t.reset()
	}
	start := w.Start()
	if start.Len() != 2 {
		return timestep.TimeStep{}, fmt.Errorf("reset: starting state "+
			"should be 2-dimensional, got %v", start.Len())
	}
	originX, originY := start.AtVec(0), start.AtVec(1)
	if originX < 0 || originX >= TerrainLength || originY < 0 {
		return timestep.TimeStep{}, fmt.Errorf("reset: start (%v, %v) "+
			"outside of terrain", originX, originY)
	}

	w.build(originX*VoxelSize, originY*VoxelSize)
	w.com = w.centreOfMass()
	w.prevCOM = w.com
	w.camera = w.com.X

	obs := w.observe()
	w.prevStep = timestep.New(timestep.First, 0, w.discount, obs, 0)

	if w.renderMode == environment.RenderHuman {
		if err := w.show(); err != nil {
			return timestep.TimeStep{}, fmt.Errorf("reset: %w", err)
		}
	}
	return w.prevStep, nil
}

// build creates a new Box2D world holding the ground and the robot,
// with the robot's lower left corner at (x, y)
func (w *Walker) build(x, y float64) {
	w.world = box2d.MakeB2World(box2d.MakeB2Vec2(XGravity, YGravity))

	// Ground
	groundDef := box2d.NewB2BodyDef()
	groundDef.Type = 0 // Static body
	w.ground = w.world.CreateBody(groundDef)
	groundShape := box2d.NewB2EdgeShape()
	groundShape.Set(box2d.MakeB2Vec2(-TerrainLength*VoxelSize, 0.0),
		box2d.MakeB2Vec2(2*TerrainLength*VoxelSize, 0.0))
	groundFix := box2d.MakeB2FixtureDef()
	groundFix.Shape = groundShape
	groundFix.Friction = Friction
	w.ground.CreateFixtureFromDef(&groundFix)

	// Points of fixed voxels are pinned in place
	pinned := make([]bool, len(w.gridPts))
	for _, v := range w.voxels {
		if v.material == morphology.Fixed {
			for _, p := range v.corners {
				pinned[p] = true
			}
		}
	}

	rows := float64(w.robot.Body.Rows)
	w.points = make([]*box2d.B2Body, len(w.gridPts))
	for i, g := range w.gridPts {
		pointDef := box2d.MakeB2BodyDef()
		pointDef.Type = 2 // Dynamic body
		if pinned[i] {
			pointDef.Type = 0
		}
		pointDef.AllowSleep = false
		pointDef.FixedRotation = true
		pointDef.Position = box2d.MakeB2Vec2(
			x+float64(g[0])*VoxelSize,
			y+(rows-float64(g[1]))*VoxelSize+PointRadius,
		)
		point := w.world.CreateBody(&pointDef)

		shape := box2d.MakeB2CircleShape()
		shape.M_radius = PointRadius
		pointFix := box2d.MakeB2FixtureDef()
		pointFix.Shape = &shape
		pointFix.Density = PointMass / (math.Pi * PointRadius * PointRadius)
		pointFix.Friction = Friction
		pointFix.Restitution = 0.0

		// Points of the robot never collide with each other
		filter := box2d.MakeB2Filter()
		filter.GroupIndex = -1
		pointFix.Filter = filter

		point.CreateFixtureFromDef(&pointFix)
		w.points[i] = point
	}

	// Each voxel is a box of springs: four edges followed by two diagonals
	w.joints = make([][6]*box2d.B2DistanceJoint, len(w.voxels))
	for i, v := range w.voxels {
		freq := RigidFrequency
		switch v.material {
		case morphology.Soft:
			freq = SoftFrequency
		case morphology.HorizontalActuator, morphology.VerticalActuator:
			freq = ActuatorFrequency
		}

		for j, pair := range voxelSprings {
			a, b := w.points[v.corners[pair[0]]], w.points[v.corners[pair[1]]]
			if a.GetType() == 0 && b.GetType() == 0 {
				continue
			}
			jd := box2d.MakeB2DistanceJointDef()
			jd.Initialize(a, b, a.GetPosition(), b.GetPosition())
			jd.FrequencyHz = freq
			jd.DampingRatio = DampingRatio
			w.joints[i][j] = w.world.CreateJoint(&jd).(*box2d.B2DistanceJoint)
		}
	}
}

// voxelSprings lists the corner pairs joined by a spring in each
// voxel: top, bottom, left, right, and the two diagonals
var voxelSprings = [6][2]int{
	{topLeft, topRight},
	{bottomLeft, bottomRight},
	{topLeft, bottomLeft},
	{topRight, bottomRight},
	{topLeft, bottomRight},
	{topRight, bottomLeft},
}

// actuate sets the rest lengths of the springs of each actuator voxel
func (w *Walker) actuate(a *mat.VecDense) {
	for i, vi := range w.actuators {
		v := w.voxels[vi]
		scale := a.AtVec(i)

		width, height := VoxelSize, VoxelSize
		if v.material == morphology.HorizontalActuator {
			width *= scale
		} else {
			height *= scale
		}
		diagonal := math.Hypot(width, height)

		lengths := [6]float64{width, width, height, height, diagonal, diagonal}
		for j, joint := range w.joints[vi] {
			if joint != nil {
				joint.SetLength(lengths[j])
			}
		}
	}
}

// Step takes one environmental step given action a and returns the
// next timestep and whether or not the episode has ended
func (w *Walker) Step(a *mat.VecDense) (timestep.TimeStep, bool, error) {
	if w.closed {
		return timestep.TimeStep{}, true, fmt.Errorf("step: %w", ErrClosed)
	}
	if a.Len() != len(w.actuators) {
		return timestep.TimeStep{}, true, fmt.Errorf("step: expected "+
			"action of length %v, got %v", len(w.actuators), a.Len())
	}
	for i := 0; i < a.Len(); i++ {
		if math.IsNaN(a.AtVec(i)) {
			return timestep.TimeStep{}, true, fmt.Errorf("step: action "+
				"%v is NaN", i)
		}
	}

	// Clip actions
	action := mat.VecDenseCopyOf(a)
	w.ActionSpec().Clip(action)
	w.actuate(action)

	for i := 0; i < Substeps; i++ {
		w.world.Step(1.0/FPS/float64(Substeps), VelocityIterations,
			PositionIterations)
	}

	w.prevCOM = w.com
	w.com = w.centreOfMass()
	obs := w.observe()
	for i := 0; i < obs.Len(); i++ {
		if math.IsNaN(obs.AtVec(i)) || math.IsInf(obs.AtVec(i), 0) {
			return timestep.TimeStep{}, true, fmt.Errorf("step: simulation " +
				"diverged")
		}
	}

	reward := w.GetReward(w.prevStep.Observation, action, obs)
	t := timestep.New(timestep.Mid, reward, w.discount, obs,
		w.prevStep.Number+1)
	w.End(&t)

	w.prevStep = t

	if w.renderMode == environment.RenderHuman {
		if err := w.show(); err != nil {
			return timestep.TimeStep{}, true, fmt.Errorf("step: %w", err)
		}
	}

	return t, t.Last(), nil
}

// centreOfMass returns the mean position of the robot's points
func (w *Walker) centreOfMass() box2d.B2Vec2 {
	var x, y float64
	for _, p := range w.points {
		pos := p.GetPosition()
		x += pos.X
		y += pos.Y
	}
	n := float64(len(w.points))
	return box2d.MakeB2Vec2(x/n, y/n)
}

// observe returns the current state observation
func (w *Walker) observe() *mat.VecDense {
	n := len(w.points)
	obs := make([]float64, 2+2*n)

	var vx, vy float64
	for i, p := range w.points {
		vel := p.GetLinearVelocity()
		vx += vel.X
		vy += vel.Y

		pos := p.GetPosition()
		obs[2+i] = (pos.X - w.com.X) / VoxelSize
		obs[2+n+i] = (pos.Y - w.com.Y) / VoxelSize
	}
	obs[0] = vx / float64(n) / VoxelSize
	obs[1] = vy / float64(n) / VoxelSize

	return mat.NewVecDense(len(obs), obs)
}

// CurrentTimeStep returns the last timestep of the environment
func (w *Walker) CurrentTimeStep() timestep.TimeStep {
	return w.prevStep
}

// ActionSpec returns the action specification of the environment
func (w *Walker) ActionSpec() environment.Spec {
	return environment.NewBoxSpec(len(w.actuators), environment.Action,
		MinAction, MaxAction)
}

// ObservationSpec returns the observation specification of the
// environment
func (w *Walker) ObservationSpec() environment.Spec {
	return environment.NewBoxSpec(2+2*len(w.gridPts),
		environment.Observation, math.Inf(-1), math.Inf(1))
}

// RewardSpec returns the reward specification of the environment
func (w *Walker) RewardSpec() environment.Spec {
	return environment.NewBoxSpec(1, environment.Reward, math.Inf(-1),
		math.Inf(1))
}

// DiscountSpec returns the discount specification of the environment
func (w *Walker) DiscountSpec() environment.Spec {
	return environment.NewBoxSpec(1, environment.Discount, w.discount,
		w.discount)
}

// Render renders the current state of the environment. In
// environment.RenderNone mode, a nil image is returned.
func (w *Walker) Render() (image.Image, error) {
	if w.closed {
		return nil, fmt.Errorf("render: %w", ErrClosed)
	}
	if w.renderMode == environment.RenderNone {
		return nil, nil
	}
	return w.draw(), nil
}

// show draws the current frame on the viewer
func (w *Walker) show() error {
	return w.viewer.Show(w.draw())
}

// Close closes the environment and its viewer
func (w *Walker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.points = nil
	w.joints = nil
	if w.viewer != nil {
		return w.viewer.Close()
	}
	return nil
}
