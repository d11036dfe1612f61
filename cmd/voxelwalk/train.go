package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/samuelfneumann/voxelwalk/agent/nonlinear/continuous/ppo"
	"github.com/samuelfneumann/voxelwalk/config"
	"github.com/samuelfneumann/voxelwalk/environment"
	"github.com/samuelfneumann/voxelwalk/environment/wrappers"
	"github.com/samuelfneumann/voxelwalk/experiment"
	"github.com/samuelfneumann/voxelwalk/experiment/checkpointer"
	"github.com/samuelfneumann/voxelwalk/experiment/tracker"
	"github.com/samuelfneumann/voxelwalk/experiment/trackers"
	"github.com/samuelfneumann/voxelwalk/storage"
	"github.com/spf13/cobra"
)

type trainOptions struct {
	timesteps       int
	out             string
	seed            uint64
	size            int
	robot           string
	normalize       bool
	normOut         string
	config          string
	runsDB          string
	checkpointEvery int
	history         string
}

func newTrainCmd() *cobra.Command {
	var opts trainOptions

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a PPO policy for a freshly sampled robot",
		Long: "train samples a robot, saves it, trains a PPO policy for it " +
			"and saves the policy. With --normalize, observations and " +
			"rewards are normalized, a larger network is trained for " +
			"longer and the normalization statistics are saved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.normalize && !cmd.Flags().Changed("timesteps") {
				opts.timesteps = 300_000
			}
			return train(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.timesteps, "timesteps", 50_000,
		"environment steps to train for (300000 with --normalize)")
	f.StringVar(&opts.out, "out", "ppo_evogym_walker", "model output path")
	f.Uint64Var(&opts.seed, "seed", 123, "random seed")
	f.IntVar(&opts.size, "size", 5, "robot grid size")
	f.StringVar(&opts.robot, "robot", "robot.gob",
		"robot output path, empty to not save the robot")
	f.BoolVar(&opts.normalize, "normalize", false,
		"normalize observations and rewards")
	f.StringVar(&opts.normOut, "norm-out", "vecnormalize.gob",
		"normalization statistics output path")
	f.StringVar(&opts.config, "config", "",
		"PPO hyperparameter file (.json or .hcl)")
	f.StringVar(&opts.runsDB, "runs-db", "",
		"SQLite database logging runs and episodes, empty to disable")
	f.IntVar(&opts.checkpointEvery, "checkpoint-every", 0,
		"save the model every n steps, 0 to disable")
	f.StringVar(&opts.history, "history", "",
		"path prefix of episode return and length files, empty to disable")
	return cmd
}

func train(ctx context.Context, opts trainOptions) error {
	cfg := ppo.DefaultConfig()
	if opts.normalize {
		cfg = ppo.LargeConfig()
	}
	if opts.config != "" {
		var err error
		if cfg, err = config.Load(opts.config, cfg); err != nil {
			return err
		}
	}
	if opts.timesteps <= 0 {
		return fmt.Errorf("timesteps must be positive, got %v", opts.timesteps)
	}

	// Build and save the robot
	robot, err := sampleRobot(opts.size, opts.seed)
	if err != nil {
		return err
	}
	log.Printf("robot:\n%v", robot.Body)
	if opts.robot != "" {
		if err := robot.Save(opts.robot); err != nil {
			return err
		}
	}

	w, err := newWalker(robot, environment.RenderNone, opts.seed)
	if err != nil {
		return err
	}
	defer w.Close()

	var env environment.Environment = w
	var norm *wrappers.Normalize
	if opts.normalize {
		norm = wrappers.NewNormalize(w, cfg.Gamma)
		env = norm
	}

	agent, err := ppo.New(env, cfg, opts.seed)
	if err != nil {
		return err
	}
	defer agent.Close()

	// Only full rollouts are learned from
	steps := (opts.timesteps + cfg.NSteps - 1) / cfg.NSteps * cfg.NSteps

	// Episode statistics are of the raw walker rewards
	window := trackers.NewWindow(100)
	sinks := []func(trackers.Episode) error{
		func(ep trackers.Episode) error {
			window.Add(ep)
			return nil
		},
	}

	if opts.runsDB != "" {
		runLog := storage.NewRunLog(opts.runsDB)
		if err := runLog.Init(ctx); err != nil {
			return err
		}
		defer runLog.Close()

		runID := agent.RunID()
		err := runLog.StartRun(ctx, storage.Run{
			ID:        runID,
			Started:   time.Now(),
			Command:   "train",
			Seed:      opts.seed,
			Timesteps: steps,
			ModelPath: ppo.Path(opts.out),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := runLog.FinishRun(context.Background(), runID,
				time.Now()); err != nil {
				log.Printf("could not finish run %v: %v", runID, err)
			}
		}()

		sinks = append(sinks, func(ep trackers.Episode) error {
			return runLog.AddEpisode(ctx, runID, storage.Episode{
				N:       ep.Number,
				Return:  ep.Return,
				Length:  ep.Length,
				EndType: ep.EndType.String(),
			})
		})
	}

	episodes := trackers.NewEpisodes(func(ep trackers.Episode) error {
		for _, sink := range sinks {
			if err := sink(ep); err != nil {
				return err
			}
		}
		return nil
	})

	if cfg.Verbose > 0 {
		agent.OnUpdate = func(s ppo.UpdateStats) {
			ret, length := window.Mean()
			log.Printf("rollout %d | ep_rew_mean %.3f | ep_len_mean %.1f | "+
				"episodes %d", s.Update, ret, length, window.Len())
		}
	}

	var checkpointers []checkpointer.Checkpointer
	if opts.checkpointEvery > 0 {
		c, err := checkpointer.NewNStep(opts.checkpointEvery,
			snapshot{agent: agent, norm: norm},
			checkpointer.StepFilenames(opts.out, ppo.Ext))
		if err != nil {
			return err
		}
		checkpointers = append(checkpointers, c)
	}

	trackerList := []tracker.Tracker{
		tracker.Register(episodes, w),
		newProgress(steps),
	}
	if opts.history != "" {
		trackerList = append(trackerList,
			tracker.Register(trackers.NewReturn(returnsFile(opts.history)), w),
			tracker.Register(
				trackers.NewEpisodeLength(lengthsFile(opts.history)), w),
		)
	}

	log.Printf("training run %v for %v steps", agent.RunID(), steps)
	exp := experiment.NewOnline(env, agent, steps, trackerList, checkpointers)
	if err := exp.Run(ctx); err != nil {
		return err
	}
	if err := exp.Save(); err != nil {
		return err
	}

	// Save policy and normalization statistics
	if err := agent.Save(opts.out); err != nil {
		return err
	}
	saved := []string{ppo.Path(opts.out)}
	if norm != nil {
		if err := norm.Save(opts.normOut); err != nil {
			return err
		}
		saved = append(saved, opts.normOut)
	}
	if opts.robot != "" {
		saved = append(saved, opts.robot)
	}
	if opts.history != "" {
		saved = append(saved, returnsFile(opts.history),
			lengthsFile(opts.history))
	}
	fmt.Printf("Saved: %v\n", strings.Join(saved, ", "))
	return nil
}

// returnsFile and lengthsFile name the files holding the raw episode
// returns and lengths of a training run, saved with --history
func returnsFile(prefix string) string { return prefix + "_returns.gob" }

func lengthsFile(prefix string) string { return prefix + "_lengths.gob" }

// snapshot saves the agent and, when training on a normalized
// environment, the normalization statistics next to it so that every
// checkpoint can be replayed with matching observations
type snapshot struct {
	agent *ppo.PPO
	norm  *wrappers.Normalize
}

func (s snapshot) Save(path string) error {
	if err := s.agent.Save(path); err != nil {
		return err
	}
	if s.norm == nil {
		return nil
	}
	return s.norm.Save(normFile(path))
}

// normFile returns the path of the normalization statistics saved with
// the checkpoint at model
func normFile(model string) string {
	return strings.TrimSuffix(ppo.Path(model), ppo.Ext) + "_vecnormalize.gob"
}
