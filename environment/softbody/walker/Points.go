package walker

import (
	"fmt"

	"github.com/samuelfneumann/voxelwalk/morphology"
)

// Corners of a voxel, in the order top-left, top-right, bottom-left,
// bottom-right
const (
	topLeft = iota
	topRight
	bottomLeft
	bottomRight
)

// voxel is a simulated voxel: the indices of its four corner points in
// the walker's point list, and its material
type voxel struct {
	material morphology.Voxel
	row, col int
	corners  [4]int
}

// pointSet is a disjoint set over voxel corners used to merge the
// corners of connected voxels into shared points
type pointSet []int

func (p pointSet) find(i int) int {
	for p[i] != i {
		p[i] = p[p[i]]
		i = p[i]
	}
	return i
}

func (p pointSet) union(i, j int) {
	ri, rj := p.find(i), p.find(j)
	if ri < rj {
		p[rj] = ri
	} else if rj < ri {
		p[ri] = rj
	}
}

// layout computes the simulated voxels of a robot and the grid
// coordinates of each distinct point. Two voxels share corners only
// if the robot's connectivity links them. Grid coordinates of a point
// are (column, row) of the corner, with row 0 at the top of the robot.
func layout(robot morphology.Robot) ([]voxel, [][2]int, error) {
	body := robot.Body
	key := func(v, corner int) int { return 4*v + corner }

	set := make(pointSet, 4*len(body.Voxels))
	for i := range set {
		set[i] = i
	}

	for _, conn := range robot.Connections {
		a, b := conn.A, conn.B
		if a > b {
			a, b = b, a
		}
		ra, ca := a/body.Cols, a%body.Cols
		rb, cb := b/body.Cols, b%body.Cols

		switch {
		case ra == rb && cb == ca+1:
			set.union(key(a, topRight), key(b, topLeft))
			set.union(key(a, bottomRight), key(b, bottomLeft))
		case ca == cb && rb == ra+1:
			set.union(key(a, bottomLeft), key(b, topLeft))
			set.union(key(a, bottomRight), key(b, topRight))
		default:
			return nil, nil, fmt.Errorf("layout: connection %v links "+
				"non-adjacent voxels", conn)
		}
	}

	ids := make(map[int]int)
	var points [][2]int
	var voxels []voxel
	for r := 0; r < body.Rows; r++ {
		for c := 0; c < body.Cols; c++ {
			material := body.At(r, c)
			if material == morphology.Empty {
				continue
			}
			v := voxel{material: material, row: r, col: c}
			i := body.Index(r, c)
			for corner := 0; corner < 4; corner++ {
				root := set.find(key(i, corner))
				id, ok := ids[root]
				if !ok {
					id = len(points)
					ids[root] = id
					points = append(points, [2]int{c + corner%2, r + corner/2})
				}
				v.corners[corner] = id
			}
			voxels = append(voxels, v)
		}
	}
	return voxels, points, nil
}
