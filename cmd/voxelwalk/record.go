package main

import (
	"fmt"

	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/experiment"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	"github.com/samuelfneumann/voxelwalk/experiment/trackers"
	"github.com/samuelfneumann/voxelwalk/media"
	"github.com/samuelfneumann/voxelwalk/morphology"
	"github.com/spf13/cobra"
)

type recordOptions struct {
	model string
	robot string
	norm  string
	steps int
	fps   int
	gif   string
	mp4   string
	seed  uint64
}

func newRecordCmd() *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a GIF or MP4 of a trained PPO policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.fps <= 0 {
				return fmt.Errorf("fps must be positive, got %v", opts.fps)
			}
			robot, err := morphology.Load(opts.robot)
			if err != nil {
				return err
			}
			w, err := newWalker(robot, environment.RenderRGBArray, opts.seed)
			if err != nil {
				return err
			}
			defer w.Close()

			env, agent, err := loadPolicy(w, opts.model, opts.norm, opts.seed)
			if err != nil {
				return err
			}
			defer agent.Close()

			frames := trackers.NewFrames(w)
			exp := experiment.NewOnline(env, agent, opts.steps,
				[]tracker.Tracker{frames}, nil)
			exp.Learn = false
			if err := exp.Run(cmd.Context()); err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			captured := frames.Frames()
			if len(captured) == 0 {
				fmt.Println("No frames captured. Ensure the environment " +
					"renders in rgb_array mode.")
				return nil
			}

			fps := float64(opts.fps)
			if opts.gif != "" {
				if err := media.SaveGIF(opts.gif, captured, fps); err != nil {
					return err
				}
				fmt.Printf("Saved GIF: %v  (%v frames @ %v fps)\n", opts.gif,
					len(captured), opts.fps)
			}
			if opts.mp4 != "" {
				if err := media.SaveMP4(cmd.Context(), opts.mp4, captured,
					fps); err != nil {
					return err
				}
				fmt.Printf("Saved MP4: %v\n", opts.mp4)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.model, "model", "ppo_evogym_walker", "trained model path")
	f.StringVar(&opts.robot, "robot", "robot.gob",
		"robot the model was trained for")
	f.StringVar(&opts.norm, "norm", "",
		"normalization statistics saved by train --normalize")
	f.IntVar(&opts.steps, "steps", 400, "number of steps to record")
	f.IntVar(&opts.fps, "fps", 30, "frames per second of the output")
	f.StringVar(&opts.gif, "gif", "evogym_demo.gif",
		"output GIF path, empty to skip")
	f.StringVar(&opts.mp4, "mp4", "", "output MP4 path, empty to skip")
	f.Uint64Var(&opts.seed, "seed", 123, "random seed")
	return cmd
}
