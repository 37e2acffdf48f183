package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/conescan/internal/config"
	"github.com/banshee-data/conescan/internal/monitoring"
	"github.com/banshee-data/conescan/internal/version"
)

// newRootCmd builds the command tree. Commands are constructed per call so
// tests get fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "conescan",
		Short: "Cone marker LiDAR simulator and detector",
		Long: `conescan generates synthetic multi-channel LiDAR scans of cone markers
along a track and recovers the marker positions from point clouds.

Examples:
  conescan simulate --track track.json --from 0 --to 5 --out pcls
  conescan detect pcls/pcl_0.csv --png top.png
  conescan simulate --track track.json --db scans.db
  conescan scans --db scans.db`,
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
				monitoring.SetLogger(nil)
			}
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "Tuning config JSON (default: "+config.DefaultConfigPath+" if present)")
	root.PersistentFlags().Uint64("seed", 0, "Random seed (default from config)")
	root.PersistentFlags().BoolP("quiet", "q", false, "Suppress diagnostic logging")

	root.AddCommand(newSimulateCmd(), newDetectCmd(), newScansCmd())
	return root
}

// loadConfig resolves the tuning configuration and seed for a command.
// Without --config the defaults file is used when it exists, otherwise the
// built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.TuningConfig, uint64, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.TuningConfig
	switch {
	case path != "":
		c, err := config.LoadTuningConfig(path)
		if err != nil {
			return nil, 0, err
		}
		cfg = c
	default:
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			c, err := config.LoadTuningConfig(config.DefaultConfigPath)
			if err != nil {
				return nil, 0, err
			}
			cfg = c
		} else if errors.Is(err, os.ErrNotExist) {
			cfg = config.EmptyTuningConfig()
		} else {
			return nil, 0, fmt.Errorf("failed to stat default config: %w", err)
		}
	}

	seed := cfg.GetSeed()
	if cmd.Flags().Changed("seed") {
		seed, _ = cmd.Flags().GetUint64("seed")
	}
	return cfg, seed, nil
}

// newSource returns the random stream for one unit of work (a pose index or
// a detection run) under seed.
func newSource(seed, stream uint64) rand.Source {
	return rand.NewPCG(seed, stream)
}
