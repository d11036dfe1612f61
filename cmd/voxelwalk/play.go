package main

import (
	"log"

	"github.com/samuelfneumann/voxelwalk/agent/nonlinear/continuous/ppo"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/environment/softbody/walker"
	"github.com/samuelfneumann/voxelwalk/environment/wrappers"
	"github.com/samuelfneumann/voxelwalk/experiment"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	"github.com/spf13/cobra"
)

type playOptions struct {
	model  string
	robot  string
	norm   string
	steps  int
	seed   uint64
	size   int
	render string
}

func newPlayCmd() *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Replay a trained PPO policy",
		Long: "play replays a trained PPO policy deterministically. The " +
			"robot must be the robot the policy was trained for. With " +
			"--norm, observations are normalized with saved statistics " +
			"which are not updated, and raw rewards are reported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.norm != "" && !cmd.Flags().Changed("steps") {
				opts.steps = 3000
			}
			mode, err := environment.ParseRenderMode(opts.render)
			if err != nil {
				return err
			}

			robot, err := loadOrSampleRobot(opts.robot, opts.size, opts.seed)
			if err != nil {
				return err
			}
			w, err := newWalker(robot, mode, opts.seed)
			if err != nil {
				return err
			}
			defer w.Close()

			env, agent, err := loadPolicy(w, opts.model, opts.norm, opts.seed)
			if err != nil {
				return err
			}
			defer agent.Close()

			exp := experiment.NewOnline(env, agent, opts.steps, []tracker.Tracker{
				tracker.Register(logEpisodes(), w),
				newProgress(opts.steps),
			}, nil)
			exp.Learn = false
			if err := exp.Run(cmd.Context()); err != nil {
				return err
			}
			if err := exp.Save(); err != nil {
				return err
			}
			return w.Close()
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.model, "model", "ppo_evogym_walker", "trained model path")
	f.StringVar(&opts.robot, "robot", "robot.gob",
		"robot the model was trained for, empty to sample a new robot")
	f.StringVar(&opts.norm, "norm", "",
		"normalization statistics saved by train --normalize")
	f.IntVar(&opts.steps, "steps", 2000,
		"environment steps to play (3000 with --norm)")
	f.Uint64Var(&opts.seed, "seed", 123, "random seed")
	f.IntVar(&opts.size, "size", 5, "grid size of a sampled robot")
	f.StringVar(&opts.render, "render", "human",
		"render mode: human, rgb_array or none")
	return cmd
}

// loadPolicy loads the model saved at path in evaluation mode. If
// normPath is not empty, w is wrapped in a Normalize using the saved
// statistics in evaluation mode. The returned environment is the
// environment the policy acts in.
func loadPolicy(w *walker.Walker, path, normPath string,
	seed uint64) (environment.Environment, *ppo.PPO, error) {
	var env environment.Environment = w
	if normPath != "" {
		norm, err := wrappers.LoadNormalize(normPath, w)
		if err != nil {
			return nil, nil, err
		}
		env = norm
	}

	agent, err := ppo.Load(path, env, seed)
	if err != nil {
		return nil, nil, err
	}
	agent.Eval()
	log.Printf("loaded run %v from %v", agent.RunID(), ppo.Path(path))
	return env, agent, nil
}
