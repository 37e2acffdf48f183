package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/conescan/internal/config"
	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/monitor"
	"github.com/banshee-data/conescan/internal/lidar/sim"
	"github.com/banshee-data/conescan/internal/lidar/storage/sqlite"
	"github.com/banshee-data/conescan/internal/lidar/track"
)

type simulateOptions struct {
	trackPath string
	outDir    string
	dbPath    string
	from      int
	to        int
	views     bool
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate point clouds along a track centre line",
		Long: `Generate one shuffled point cloud per centre-line index in [from, to].

Each cloud is written to <out>/pcl_<index>.csv in the sensor frame. A negative
--to (or one below --from) runs to the end of the track. With --db every scan
is also stored in the SQLite scan store. With --views a top view of the track,
the vehicle and its field of view is saved next to each cloud as view_<index>.png.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, seed, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), cfg, seed, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.trackPath, "track", "t", "track.json", "Track JSON file")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "pcls", "Output directory for point cloud files")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Also store scans in this SQLite database")
	cmd.Flags().IntVar(&opts.from, "from", 0, "First centre-line index")
	cmd.Flags().IntVar(&opts.to, "to", -1, "Last centre-line index, inclusive (-1 = end of track)")
	cmd.Flags().BoolVar(&opts.views, "views", false, "Also save a track view PNG per pose")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, cfg *config.TuningConfig, seed uint64, opts simulateOptions) error {
	params, err := sim.ParamsFromTuning(cfg)
	if err != nil {
		return fmt.Errorf("invalid simulation parameters: %w", err)
	}

	trk, err := track.Load(opts.trackPath)
	if err != nil {
		return err
	}

	from, to := opts.from, opts.to
	if to < from {
		to = trk.PoseCount() - 1
	}
	if from < 0 || to >= trk.PoseCount() {
		return fmt.Errorf("%w: range [%d, %d] outside [0, %d)", track.ErrPoseIndex, from, to, trk.PoseCount())
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var store *sqlite.ScanStore
	if opts.dbPath != "" {
		db, err := sqlite.Open(opts.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		store = sqlite.NewScanStore(db)
	}

	for i := from; i <= to; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pose, err := trk.PoseAt(i)
		if err != nil {
			return err
		}
		maxDist := params.MaxScanDistance(pose.Z + params.SensorDisplacement.Z)
		nearby := trk.NearbyMarkers(pose, maxDist)

		// One stream per index keeps each file reproducible on its own.
		src := newSource(seed, uint64(i))
		assembler, err := sim.NewScanAssembler(params, src)
		if err != nil {
			return err
		}
		cloud, err := assembler.GeneratePointCloud(pose, track.Positions(nearby))
		if err != nil {
			return fmt.Errorf("pose %d: %w", i, err)
		}
		cloud = cloud.Shuffled(src)

		name := fmt.Sprintf("pcl_%d.csv", i)
		if err := lidar.WritePointCloudFile(filepath.Join(opts.outDir, name), cloud); err != nil {
			return fmt.Errorf("pose %d: %w", i, err)
		}

		if opts.views {
			view := filepath.Join(opts.outDir, fmt.Sprintf("view_%d.png", i))
			if err := monitor.SaveTrackView(view, trk, pose, params); err != nil {
				return fmt.Errorf("pose %d: %w", i, err)
			}
		}

		scanID := ""
		if store != nil {
			rec := &sqlite.ScanRecord{
				Source:    opts.trackPath,
				PoseIndex: i,
				Pose:      pose,
				Seed:      seed,
			}
			if scanID, err = store.SaveScan(ctx, rec, cloud); err != nil {
				return err
			}
		}

		fmt.Fprintf(out, "%s: %d points, %d markers within %.1f m, pose (%.2f, %.2f) heading %.1f°",
			name, len(cloud), len(nearby), maxDist, pose.X, pose.Y, pose.Yaw*180/math.Pi)
		if scanID != "" {
			fmt.Fprintf(out, ", scan %s", scanID)
		}
		fmt.Fprintln(out)
	}
	return nil
}
