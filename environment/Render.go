package environment

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fogleman/gg"
)

// RenderMode determines how an environment is rendered
type RenderMode int

const (
	// RenderNone disables rendering, Render returns a nil image
	RenderNone RenderMode = iota

	// RenderHuman draws each step and shows it on a Viewer
	RenderHuman

	// RenderRGBArray draws frames only when Render is called
	RenderRGBArray
)

func (r RenderMode) String() string {
	switch r {
	case RenderHuman:
		return "human"
	case RenderRGBArray:
		return "rgb_array"
	default:
		return "none"
	}
}

// ParseRenderMode parses the name of a RenderMode
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(s) {
	case "human":
		return RenderHuman, nil
	case "rgb_array", "rgb":
		return RenderRGBArray, nil
	case "none", "":
		return RenderNone, nil
	}
	return RenderNone, fmt.Errorf("parseRenderMode: unknown render mode %q", s)
}

// Viewer displays frames of an environment rendered in RenderHuman mode
type Viewer interface {
	Show(image.Image) error
	Close() error
}

// PNGViewer is a Viewer which rewrites a single PNG file every frame.
// Any image viewer that reloads on change can be used to watch it. The
// viewer sleeps between frames so that the environment runs at most
// at FPS frames per second.
type PNGViewer struct {
	Path string
	FPS  float64

	last time.Time
}

// NewPNGViewer returns a new PNGViewer writing to path
func NewPNGViewer(path string, fps float64) *PNGViewer {
	return &PNGViewer{Path: path, FPS: fps}
}

// Show writes img to the viewer's file
func (p *PNGViewer) Show(img image.Image) error {
	if p.FPS > 0 && !p.last.IsZero() {
		frame := time.Duration(float64(time.Second) / p.FPS)
		if wait := frame - time.Since(p.last); wait > 0 {
			time.Sleep(wait)
		}
	}
	p.last = time.Now()

	// Write then rename so readers never see a partial file
	tmp := filepath.Join(filepath.Dir(p.Path), "."+filepath.Base(p.Path)+".tmp")
	if err := gg.SavePNG(tmp, img); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	return nil
}

// Close removes nothing, the last frame is left on disk
func (p *PNGViewer) Close() error {
	return nil
}
