package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/conescan/internal/config"
	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/l4perception"
	"github.com/banshee-data/conescan/internal/lidar/monitor"
	"github.com/banshee-data/conescan/internal/lidar/storage/sqlite"
)

// detectStream is the random stream used for RANSAC sampling; simulate uses
// streams 0..n for pose indices.
const detectStream = 1 << 63

type detectOptions struct {
	dbPath    string
	scanID    string
	pngPath   string
	htmlPath  string
	dropNoise bool
}

func newDetectCmd() *cobra.Command {
	var opts detectOptions

	cmd := &cobra.Command{
		Use:   "detect [point-cloud-file]",
		Short: "Remove the floor and locate markers in a point cloud",
		Long: `Run floor removal and clustering on a point cloud and print one centroid
per cluster label (label -1 collects noise points).

The cloud is read from a .csv or whitespace separated text file, or from the
scan store with --db and --scan. With --db and a file argument the cloud is
imported as a new scan. Detections are saved whenever --db is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, seed, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runDetect(cmd.Context(), cmd.OutOrStdout(), cfg, seed, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite scan store")
	cmd.Flags().StringVar(&opts.scanID, "scan", "", "Scan ID to load from --db")
	cmd.Flags().StringVar(&opts.pngPath, "png", "", "Write a top view image (png, svg or pdf by extension)")
	cmd.Flags().StringVar(&opts.htmlPath, "html", "", "Write an interactive top view page")
	cmd.Flags().BoolVar(&opts.dropNoise, "drop-noise", false, "Omit the noise centroid")
	return cmd
}

func runDetect(ctx context.Context, out io.Writer, cfg *config.TuningConfig, seed uint64, path string, opts detectOptions) error {
	if (path == "") == (opts.scanID == "") {
		return errors.New("exactly one of a point cloud file or --scan is required")
	}
	if opts.scanID != "" && opts.dbPath == "" {
		return errors.New("--scan requires --db")
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

	var (
		cloud lidar.PointCloud
		err   error
		title string
	)
	scanID := opts.scanID
	if scanID != "" {
		if cloud, err = store.LoadScan(ctx, scanID); err != nil {
			return err
		}
		title = "scan " + scanID
	} else {
		if cloud, err = lidar.ReadPointCloudFile(path); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		title = filepath.Base(path)
		if store != nil {
			rec := &sqlite.ScanRecord{Source: path, PoseIndex: -1, Seed: seed}
			if scanID, err = store.SaveScan(ctx, rec, cloud); err != nil {
				return err
			}
		}
	}

	pipeline, err := l4perception.PipelineFromTuning(cfg, newSource(seed, detectStream))
	if err != nil {
		return err
	}
	det, err := pipeline.Detect(cloud)
	if err != nil {
		return err
	}

	centroids := det.Centroids
	if opts.dropNoise {
		centroids = l4perception.DropNoise(centroids)
	}

	fmt.Fprintf(out, "%s: %d points, %d above floor, %d centroids\n", title, len(cloud), len(det.Filtered), len(centroids))
	fmt.Fprintf(out, "%6s %9s %9s %9s %6s\n", "label", "x", "y", "z", "points")
	for _, c := range centroids {
		fmt.Fprintf(out, "%6d %9.3f %9.3f %9.3f %6d\n", c.Label, c.Position.X, c.Position.Y, c.Position.Z, c.Count)
	}

	if store != nil {
		if err := store.SaveDetections(ctx, scanID, det.Centroids); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved detections for scan %s\n", scanID)
	}

	if opts.pngPath != "" {
		if err := monitor.SaveTopView(opts.pngPath, det.Filtered, centroids); err != nil {
			return err
		}
	}
	if opts.htmlPath != "" {
		if err := writeHTML(opts.htmlPath, title, det.Filtered, centroids); err != nil {
			return err
		}
	}
	return nil
}

func writeHTML(path, title string, cloud lidar.PointCloud, centroids []l4perception.Centroid) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := monitor.RenderTopViewHTML(f, title, cloud, centroids); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
