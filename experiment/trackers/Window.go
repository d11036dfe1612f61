package trackers

import "gonum.org/v1/gonum/stat"

// Window keeps the returns and lengths of the most recent episodes
type Window struct {
	size    int
	returns []float64
	lengths []float64
}

// NewWindow returns a new Window over the last size episodes
func NewWindow(size int) *Window {
	return &Window{size: size}
}

// Add adds an episode to the window, dropping the oldest episode if
// the window is full
func (w *Window) Add(ep Episode) {
	w.returns = append(w.returns, ep.Return)
	w.lengths = append(w.lengths, float64(ep.Length))
	if len(w.returns) > w.size {
		w.returns = w.returns[1:]
		w.lengths = w.lengths[1:]
	}
}

// Len returns the number of episodes in the window
func (w *Window) Len() int {
	return len(w.returns)
}

// Mean returns the mean return and episode length in the window. Both
// are NaN when the window is empty.
func (w *Window) Mean() (ret, length float64) {
	return stat.Mean(w.returns, nil), stat.Mean(w.lengths, nil)
}
