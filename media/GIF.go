// Package media writes captured frames to animated GIF and MP4 files
package media

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"math"
	"os"
)

// ErrNoFrames is returned when asked to write a video with no frames.
// No file is written.
var ErrNoFrames = errors.New("no frames captured")

// Delay returns the GIF frame delay, in hundredths of a second, of a
// video played at fps frames per second
func Delay(fps float64) int {
	if fps <= 0 {
		return 0
	}
	return int(math.Max(1, math.Round(100/fps)))
}

// SaveGIF writes frames to path as an animated GIF which loops
// forever. Frames are quantized to the Plan 9 palette with
// Floyd-Steinberg dithering.
func SaveGIF(path string, frames []image.Image, fps float64) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if fps <= 0 {
		return fmt.Errorf("saveGIF: fps must be positive, got %v", fps)
	}

	anim := &gif.GIF{LoopCount: 0}
	delay := Delay(fps)
	for _, frame := range frames {
		bounds := frame.Bounds()
		img := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(img, bounds, frame, bounds.Min)

		anim.Image = append(anim.Image, img)
		anim.Delay = append(anim.Delay, delay)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saveGIF: %w", err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, anim); err != nil {
		return fmt.Errorf("saveGIF: %w", err)
	}
	return f.Close()
}
