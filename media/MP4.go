package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
)

// FFmpeg is the name of the ffmpeg executable
var FFmpeg = "ffmpeg"

// ErrNoFFmpeg is returned when the ffmpeg executable cannot be found
var ErrNoFFmpeg = errors.New("ffmpeg not found")

// SaveMP4 writes frames to path as an H.264 MP4 by piping raw RGBA
// frames to an ffmpeg process. All frames must have the size of the
// first frame.
func SaveMP4(ctx context.Context, path string, frames []image.Image,
	fps float64) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if fps <= 0 {
		return fmt.Errorf("saveMP4: fps must be positive, got %v", fps)
	}
	bin, err := exec.LookPath(FFmpeg)
	if err != nil {
		return fmt.Errorf("saveMP4: %w: %v", ErrNoFFmpeg, err)
	}

	size := frames[0].Bounds().Size()
	cmd := exec.CommandContext(ctx, bin,
		"-y", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", size.X, size.Y),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		// yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("saveMP4: %w", err)
	}
	out := &limitedBuffer{max: 4096}
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("saveMP4: %w", err)
	}
	if err := encode(cmd, stdin, frames, size, out); err != nil {
		// ffmpeg may have created a truncated file
		if rmErr := os.Remove(path); rmErr != nil &&
			!errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("saveMP4: %w (removing %v: %v)", err, path,
				rmErr)
		}
		return fmt.Errorf("saveMP4: %w", err)
	}
	return nil
}

// encode streams frames to the started ffmpeg process and waits for
// it to exit
func encode(cmd *exec.Cmd, stdin io.WriteCloser, frames []image.Image,
	size image.Point, stderr *limitedBuffer) error {
	writeErr := writeFrames(stdin, frames, size)
	closeErr := stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderr.buf)
	}
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// writeFrames writes frames as raw RGBA to w
func writeFrames(w io.Writer,
	frames []image.Image, size image.Point) error {
	rgba := image.NewRGBA(image.Rectangle{Max: size})
	for i, frame := range frames {
		if frame.Bounds().Size() != size {
			return fmt.Errorf("frame %v has size %v, expected %v", i,
				frame.Bounds().Size(), size)
		}
		draw.Draw(rgba, rgba.Bounds(), frame, frame.Bounds().Min, draw.Src)
		if _, err := w.Write(rgba.Pix); err != nil {
			return err
		}
	}
	return nil
}

// limitedBuffer keeps the first max bytes written to it
type limitedBuffer struct {
	buf []byte
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - len(l.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		l.buf = append(l.buf, p[:room]...)
	}
	return len(p), nil
}
