package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/l4perception"
	"github.com/banshee-data/conescan/internal/timeutil"
)

// ErrScanNotFound is returned when no scan has the requested ID.
var ErrScanNotFound = errors.New("scan not found")

// ScanRecord describes a stored scan. Source names where the scan came from
// (a track file or an imported point cloud file); PoseIndex is the centre-line
// index it was generated at, or -1.
type ScanRecord struct {
	ScanID     string     `json:"scan_id"`
	Source     string     `json:"source"`
	PoseIndex  int        `json:"pose_index"`
	Pose       lidar.Pose `json:"pose"`
	Seed       uint64     `json:"seed"`
	PointCount int        `json:"point_count"`
	CreatedAt  int64      `json:"created_at_ns"`
}

// ScanStore persists scans and their detections.
type ScanStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewScanStore creates a ScanStore over a migrated database.
func NewScanStore(db *sql.DB) *ScanStore {
	return NewScanStoreWithClock(db, timeutil.RealClock{})
}

// NewScanStoreWithClock creates a ScanStore that stamps scans and backs off
// on lock contention using clock.
func NewScanStoreWithClock(db *sql.DB, clock timeutil.Clock) *ScanStore {
	return &ScanStore{db: db, clock: clock}
}

// SaveScan stores a scan header and its points in one transaction and
// returns the scan ID. An empty rec.ScanID is filled with a new UUID.
func (s *ScanStore) SaveScan(ctx context.Context, rec *ScanRecord, cloud lidar.PointCloud) (string, error) {
	if rec.ScanID == "" {
		rec.ScanID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.clock.Now().UnixNano()
	}
	rec.PointCount = len(cloud)

	err := retryOnBusy(s.clock, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO scans (
				scan_id, source, pose_index, pose_x, pose_y, pose_z, pose_yaw,
				seed, point_count, created_at_ns
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ScanID, rec.Source, rec.PoseIndex, rec.Pose.X, rec.Pose.Y, rec.Pose.Z, rec.Pose.Yaw,
			int64(rec.Seed), rec.PointCount, rec.CreatedAt,
		)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO scan_points (scan_id, seq, x, y, z) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, p := range cloud {
			if _, err := stmt.ExecContext(ctx, rec.ScanID, i, p.X, p.Y, p.Z); err != nil {
				return fmt.Errorf("point %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", fmt.Errorf("failed to save scan %s: %w", rec.ScanID, err)
	}
	return rec.ScanID, nil
}

// GetScan returns the header of a stored scan.
func (s *ScanStore) GetScan(ctx context.Context, scanID string) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT scan_id, source, pose_index, pose_x, pose_y, pose_z, pose_yaw,
		       seed, point_count, created_at_ns
		FROM scans WHERE scan_id = ?`, scanID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scan %s: %w", scanID, err)
	}
	return rec, nil
}

// LoadScan returns the points of a stored scan in their original order.
func (s *ScanStore) LoadScan(ctx context.Context, scanID string) (lidar.PointCloud, error) {
	rec, err := s.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT x, y, z FROM scan_points WHERE scan_id = ? ORDER BY seq`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query points of scan %s: %w", scanID, err)
	}
	defer rows.Close()

	cloud := make(lidar.PointCloud, 0, rec.PointCount)
	for rows.Next() {
		var p r3.Vector
		if err := rows.Scan(&p.X, &p.Y, &p.Z); err != nil {
			return nil, err
		}
		cloud = append(cloud, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cloud, nil
}

// ListScans returns all scan headers, newest first.
func (s *ScanStore) ListScans(ctx context.Context) ([]*ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, source, pose_index, pose_x, pose_y, pose_z, pose_yaw,
		       seed, point_count, created_at_ns
		FROM scans ORDER BY created_at_ns DESC, scan_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var out []*ScanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteScan removes a scan with its points and detections.
func (s *ScanStore) DeleteScan(ctx context.Context, scanID string) error {
	var affected int64
	err := retryOnBusy(s.clock, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE scan_id = ?`, scanID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete scan %s: %w", scanID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	return nil
}

// SaveDetections replaces the centroids recorded for a scan.
func (s *ScanStore) SaveDetections(ctx context.Context, scanID string, centroids []l4perception.Centroid) error {
	return retryOnBusy(s.clock, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM scan_detections WHERE scan_id = ?`, scanID); err != nil {
			return err
		}
		for _, c := range centroids {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO scan_detections (scan_id, label, x, y, z, point_count)
				VALUES (?, ?, ?, ?, ?, ?)`,
				scanID, c.Label, c.Position.X, c.Position.Y, c.Position.Z, c.Count)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// LoadDetections returns the centroids recorded for a scan, ordered by label.
func (s *ScanStore) LoadDetections(ctx context.Context, scanID string) ([]l4perception.Centroid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, x, y, z, point_count FROM scan_detections
		WHERE scan_id = ? ORDER BY label`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections of scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []l4perception.Centroid
	for rows.Next() {
		var c l4perception.Centroid
		if err := rows.Scan(&c.Label, &c.Position.X, &c.Position.Y, &c.Position.Z, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ScanRecord, error) {
	var rec ScanRecord
	var seed int64
	err := row.Scan(&rec.ScanID, &rec.Source, &rec.PoseIndex,
		&rec.Pose.X, &rec.Pose.Y, &rec.Pose.Z, &rec.Pose.Yaw,
		&seed, &rec.PointCount, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Seed = uint64(seed)
	return &rec, nil
}
