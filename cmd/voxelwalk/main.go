// Command voxelwalk trains, replays and records PPO policies for voxel
// robots walking on flat terrain.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envPrefix prefixes environment variables overriding flag defaults,
// e.g. VOXELWALK_SEED overrides --seed
const envPrefix = "VOXELWALK_"

func main() {
	log.SetFlags(log.Ltime)
	log.SetPrefix("voxelwalk: ")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("could not load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "voxelwalk",
		Short: "Train and replay PPO policies for soft voxel robots",
		Long: "voxelwalk trains PPO policies which make soft voxel robots " +
			"walk along flat terrain, replays trained policies and records " +
			"videos of them. Flag defaults can be overridden with " +
			envPrefix + "<FLAG> environment variables, also read from a .env " +
			"file.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnv(cmd.Flags())
		},
	}

	root.AddCommand(
		newRandomCmd(),
		newTrainCmd(),
		newPlayCmd(),
		newRecordCmd(),
	)
	return root
}

// applyEnv sets each flag not given on the command line from its
// environment variable, if set
func applyEnv(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			if setErr := flags.Set(f.Name, v); setErr != nil {
				err = setErr
			}
		}
	})
	return err
}
