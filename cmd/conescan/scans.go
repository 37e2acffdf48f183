package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/conescan/internal/lidar/storage/sqlite"
)

func newScansCmd() *cobra.Command {
	var dbPath string
	var deleteID string

	cmd := &cobra.Command{
		Use:   "scans",
		Short: "List or delete stored scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			store := sqlite.NewScanStore(db)
			out := cmd.OutOrStdout()

			if deleteID != "" {
				if err := store.DeleteScan(cmd.Context(), deleteID); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted scan %s\n", deleteID)
				return nil
			}

			scans, err := store.ListScans(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range scans {
				created := time.Unix(0, s.CreatedAt).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%s  %s  pose %d  %d points  seed %d  %s\n",
					s.ScanID, created, s.PoseIndex, s.PointCount, s.Seed, s.Source)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite scan store")
	cmd.Flags().StringVar(&deleteID, "delete", "", "Delete the scan with this ID")
	cmd.MarkFlagRequired("db")
	return cmd
}
