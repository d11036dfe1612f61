package checkpointer

import "fmt"

// StepFilenames returns a function which names checkpoints by the
// number of steps taken, e.g. StepFilenames("model", ".gob")(2048)
// returns "model_2048_steps.gob".
func StepFilenames(filename, extension string) func(steps int) string {
	return func(steps int) string {
		return fmt.Sprintf("%v_%v_steps%v", filename, steps, extension)
	}
}
