package checkpointer

import "fmt"

// nStep implements checkpointing every N steps
type nStep struct {
	interval int
	object   Saver // Object to save

	// filename returns the filename of the checkpoint taken after the
	// given number of steps. To save each checkpoint in a separate
	// file use StepFilenames, for example:
	//
	// n, err := NewNStep(10, object, StepFilenames("model", ".gob"))
	filename func(steps int) string
}

// NewNStep returns a checkpointer that checkpoints every n steps.
func NewNStep(n int, object Saver, filename func(int) string) (Checkpointer,
	error) {
	if n <= 0 {
		return nil, fmt.Errorf("newNStep: interval must be positive, got %v", n)
	}
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the Checkpointer's tracked object by calling its
// Save() method if steps is a multiple of the interval
func (n *nStep) Checkpoint(steps int) error {
	if steps > 0 && steps%n.interval == 0 {
		if err := n.object.Save(n.filename(steps)); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}
	return nil
}
