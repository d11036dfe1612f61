// Package checkpointer implements periodic saving of agents during an
// experiment
package checkpointer

// Saver is an object that can be saved to a file
type Saver interface {
	Save(path string) error
}

// Checkpointer checkpoints/saves objects based on the number of
// steps taken in an experiment
type Checkpointer interface {
	Checkpoint(steps int) error
}
