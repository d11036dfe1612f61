// Package morphology implements voxel robot bodies: sampling random
// bodies, computing their connectivity, and saving them to disk.
package morphology

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Voxel is the material of a single cell of a robot body
type Voxel int

const (
	Empty Voxel = iota
	Rigid
	Soft
	HorizontalActuator
	VerticalActuator
	Fixed
)

func (v Voxel) String() string {
	switch v {
	case Empty:
		return "Empty"
	case Rigid:
		return "Rigid"
	case Soft:
		return "Soft"
	case HorizontalActuator:
		return "HAct"
	case VerticalActuator:
		return "VAct"
	case Fixed:
		return "Fixed"
	}
	return fmt.Sprintf("Voxel(%d)", int(v))
}

// Actuator returns whether the voxel is actuated
func (v Voxel) Actuator() bool {
	return v == HorizontalActuator || v == VerticalActuator
}

// Valid returns whether v is a known voxel material
func (v Voxel) Valid() bool {
	return v >= Empty && v <= Fixed
}

// Body is a row-major grid of voxels. Row 0 is the top of the robot.
type Body struct {
	Rows, Cols int
	Voxels     []Voxel
}

// NewBody returns an empty body of the given shape
func NewBody(rows, cols int) Body {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("newBody: invalid shape %vx%v", rows, cols))
	}
	return Body{Rows: rows, Cols: cols, Voxels: make([]Voxel, rows*cols)}
}

// At returns the voxel at row r, column c
func (b Body) At(r, c int) Voxel {
	return b.Voxels[b.Index(r, c)]
}

// Set sets the voxel at row r, column c
func (b Body) Set(r, c int, v Voxel) {
	b.Voxels[b.Index(r, c)] = v
}

// Index returns the row-major index of row r, column c
func (b Body) Index(r, c int) int {
	return r*b.Cols + c
}

// Actuators returns the number of actuator voxels in the body
func (b Body) Actuators() int {
	n := 0
	for _, v := range b.Voxels {
		if v.Actuator() {
			n++
		}
	}
	return n
}

// Occupied returns the number of non-empty voxels
func (b Body) Occupied() int {
	n := 0
	for _, v := range b.Voxels {
		if v != Empty {
			n++
		}
	}
	return n
}

// Connected returns whether the non-empty voxels of the body form a
// single 4-connected component. An empty body is not connected.
func (b Body) Connected() bool {
	start := -1
	for i, v := range b.Voxels {
		if v != Empty {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}

	seen := make([]bool, len(b.Voxels))
	seen[start] = true
	stack := []int{start}
	visited := 0
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		r, c := i/b.Cols, i%b.Cols
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nr, nc := r+d[0], c+d[1]
			if nr < 0 || nr >= b.Rows || nc < 0 || nc >= b.Cols {
				continue
			}
			j := b.Index(nr, nc)
			if !seen[j] && b.Voxels[j] != Empty {
				seen[j] = true
				stack = append(stack, j)
			}
		}
	}
	return visited == b.Occupied()
}

func (b Body) String() string {
	var sb strings.Builder
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%d", int(b.At(r, c)))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Connection links the voxels at two row-major indices, A < B
type Connection struct {
	A, B int
}

// FullConnectivity links every non-empty voxel to its non-empty right
// and lower neighbours
func FullConnectivity(b Body) []Connection {
	var conns []Connection
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.At(r, c) == Empty {
				continue
			}
			i := b.Index(r, c)
			if c+1 < b.Cols && b.At(r, c+1) != Empty {
				conns = append(conns, Connection{i, b.Index(r, c+1)})
			}
			if r+1 < b.Rows && b.At(r+1, c) != Empty {
				conns = append(conns, Connection{i, b.Index(r+1, c)})
			}
		}
	}
	return conns
}

// Robot is a body together with its connectivity, the unit saved to
// and loaded from disk
type Robot struct {
	Body        Body
	Connections []Connection
}

// Validate checks that the robot is well formed
func (r Robot) Validate() error {
	b := r.Body
	if b.Rows <= 0 || b.Cols <= 0 {
		return fmt.Errorf("validate: invalid body shape %vx%v", b.Rows, b.Cols)
	}
	if len(b.Voxels) != b.Rows*b.Cols {
		return fmt.Errorf("validate: body has %v voxels, expected %v",
			len(b.Voxels), b.Rows*b.Cols)
	}
	for i, v := range b.Voxels {
		if !v.Valid() {
			return fmt.Errorf("validate: unknown voxel code %d at index %d",
				int(v), i)
		}
	}
	for _, conn := range r.Connections {
		if conn.A < 0 || conn.B < 0 || conn.A >= len(b.Voxels) ||
			conn.B >= len(b.Voxels) {
			return fmt.Errorf("validate: connection %v out of grid", conn)
		}
		if b.Voxels[conn.A] == Empty || b.Voxels[conn.B] == Empty {
			return fmt.Errorf("validate: connection %v references an "+
				"empty voxel", conn)
		}
	}
	return nil
}

// ErrInvalidRobot is returned when a robot file does not hold a valid
// robot
var ErrInvalidRobot = errors.New("invalid robot")

// Save saves the robot to a file at path
func (r Robot) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return f.Close()
}

// Load loads a robot previously saved with Save
func Load(path string) (Robot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Robot{}, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	var r Robot
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&r); err != nil {
		return Robot{}, fmt.Errorf("load: %v: %w", err, ErrInvalidRobot)
	}
	if err := r.Validate(); err != nil {
		return Robot{}, fmt.Errorf("load: %v: %w", err, ErrInvalidRobot)
	}
	return r, nil
}
