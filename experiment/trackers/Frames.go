package trackers

import (
	"fmt"
	"image"

	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/timestep"
)

// Frames captures the rendered frame of an environment after each
// environment step. Frames are only captured when the environment's
// Render method returns an image, so an environment in
// environment.RenderNone mode yields no frames.
type Frames struct {
	env    environment.Environment
	frames []image.Image
}

// NewFrames returns a new Frames capturing frames of env
func NewFrames(env environment.Environment) *Frames {
	return &Frames{env: env}
}

// Track captures the current frame. The first timestep of an episode
// is skipped so that exactly one frame is captured per step.
func (f *Frames) Track(t timestep.TimeStep) error {
	if t.First() {
		return nil
	}
	img, err := f.env.Render()
	if err != nil {
		return fmt.Errorf("track: %w", err)
	}
	if img != nil {
		f.frames = append(f.frames, img)
	}
	return nil
}

// Frames returns the captured frames
func (f *Frames) Frames() []image.Image {
	return f.frames
}

// Save does nothing, see the media package for writing frames
func (f *Frames) Save() error { return nil }
