package environment

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestParseRenderMode(t *testing.T) {
	cases := map[string]RenderMode{
		"human":     RenderHuman,
		"rgb_array": RenderRGBArray,
		"none":      RenderNone,
		"":          RenderNone,
	}
	for in, want := range cases {
		got, err := ParseRenderMode(in)
		if err != nil {
			t.Fatalf("ParseRenderMode(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseRenderMode(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseRenderMode("window"); err == nil {
		t.Error("expected error for unknown render mode")
	}
}

func TestPNGViewer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.png")
	v := NewPNGViewer(path, 0)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	for i := 0; i < 2; i++ {
		if err := v.Show(img); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("viewer file not written: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Error(err)
	}
}
