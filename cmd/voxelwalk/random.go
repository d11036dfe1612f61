package main

import (
	"log"

	"github.com/samuelfneumann/voxelwalk/agent"
	"github.com/samuelfneumann/voxelwalk/agent/random"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/experiment"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	"github.com/spf13/cobra"
)

func newRandomCmd() *cobra.Command {
	var (
		size   int
		steps  int
		seed   uint64
		render string
	)

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Run a freshly sampled robot with uniformly random actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := environment.ParseRenderMode(render)
			if err != nil {
				return err
			}

			robot, err := sampleRobot(size, seed)
			if err != nil {
				return err
			}
			log.Printf("robot:\n%v", robot.Body)

			env, err := newWalker(robot, mode, seed)
			if err != nil {
				return err
			}
			defer env.Close()

			var c agent.Config = random.Config{}
			a, err := c.CreateAgent(env, seed)
			if err != nil {
				return err
			}

			exp := experiment.NewOnline(env, a, steps,
				[]tracker.Tracker{logEpisodes(), newProgress(steps)}, nil)
			exp.Learn = false
			if err := exp.Run(cmd.Context()); err != nil {
				return err
			}
			if err := exp.Save(); err != nil {
				return err
			}
			log.Printf("%v steps, %v resets", exp.Steps(), exp.Resets())
			return env.Close()
		},
	}

	cmd.Flags().IntVar(&size, "size", 5, "robot grid size")
	cmd.Flags().IntVar(&steps, "steps", 300, "number of environment steps")
	cmd.Flags().Uint64Var(&seed, "seed", 123, "random seed")
	cmd.Flags().StringVar(&render, "render", "human",
		"render mode: human, rgb_array or none")
	return cmd
}
