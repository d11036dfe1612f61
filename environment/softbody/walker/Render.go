package walker

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/samuelfneumann/voxelwalk/morphology"
)

const (
	ViewportW float64 = 600
	ViewportH float64 = 400

	// Scale is the number of pixels per Box2D unit
	Scale float64 = 40.0

	// GroundPixels is the height of the ground at the bottom of a frame
	GroundPixels float64 = 60

	// LiveFrameFile is the file written by the default viewer in human
	// render mode
	LiveFrameFile = "voxelwalk-live.png"
)

var (
	skyShade    = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	groundShade = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	tickShade   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	edgeShade   = color.RGBA{R: 20, G: 20, B: 20, A: 255}

	voxelShades = map[morphology.Voxel]color.Color{
		morphology.Rigid:              color.RGBA{R: 38, G: 38, B: 38, A: 255},
		morphology.Soft:               color.RGBA{R: 191, G: 191, B: 191, A: 255},
		morphology.HorizontalActuator: color.RGBA{R: 254, G: 115, B: 38, A: 255},
		morphology.VerticalActuator:   color.RGBA{R: 53, G: 133, B: 233, A: 255},
		morphology.Fixed:              color.RGBA{R: 102, G: 51, B: 26, A: 255},
	}
)

// worldToPixelCoord converts Box2D coordinates to pixel coordinates
// for a camera centred horizontally on cameraX
func worldToPixelCoord(x, y, cameraX float64) (float64, float64) {
	pixelX := ViewportW/2 + Scale*(x-cameraX)
	pixelY := ViewportH - GroundPixels - Scale*y
	return pixelX, pixelY
}

// draw renders the ground and the robot. The camera follows the
// robot's centre of mass.
func (w *Walker) draw() image.Image {
	// Follow the robot smoothly
	w.camera += 0.1 * (w.com.X - w.camera)
	if math.Abs(w.com.X-w.camera) > ViewportW/Scale/3 {
		w.camera = w.com.X
	}

	dc := gg.NewContext(int(ViewportW), int(ViewportH))
	dc.SetColor(skyShade)
	dc.Clear()

	// Ground
	dc.SetColor(groundShade)
	dc.DrawRectangle(0, ViewportH-GroundPixels, ViewportW, GroundPixels)
	dc.Fill()

	// Distance markers every 5 voxels
	dc.SetColor(tickShade)
	dc.SetLineWidth(1.0)
	first := math.Floor((w.camera-ViewportW/Scale/2)/(5*VoxelSize)) * 5
	for v := first; v*VoxelSize < w.camera+ViewportW/Scale/2; v += 5 {
		x, y := worldToPixelCoord(v*VoxelSize, 0, w.camera)
		dc.DrawLine(x, y, x, y+GroundPixels/4)
	}
	dc.Stroke()

	// End of terrain
	endX, endY := worldToPixelCoord(TerrainLength*VoxelSize, 0, w.camera)
	dc.SetColor(voxelShades[morphology.HorizontalActuator])
	dc.SetLineWidth(3.0)
	dc.DrawLine(endX, endY, endX, 0)
	dc.Stroke()

	// Voxels
	for _, v := range w.voxels {
		dc.ClearPath()
		for _, corner := range [4]int{topLeft, topRight, bottomRight, bottomLeft} {
			pos := w.points[v.corners[corner]].GetPosition()
			x, y := worldToPixelCoord(pos.X, pos.Y, w.camera)
			dc.LineTo(x, y)
		}
		dc.ClosePath()
		dc.SetColor(voxelShades[v.material])
		dc.FillPreserve()
		dc.SetColor(edgeShade)
		dc.SetLineWidth(1.0)
		dc.Stroke()
	}

	return dc.Image()
}
