package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/l4perception"
	"github.com/banshee-data/conescan/internal/monitoring"
	"github.com/banshee-data/conescan/internal/timeutil"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	db, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := MigrateVersion(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Running the migrations again is a no-op.
	require.NoError(t, MigrateUp(db))
}

func TestScanStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewScanStore(setupTestDB(t))

	cloud := lidar.PointCloud{
		{X: 2.9461, Y: 0.0123, Z: -0.97},
		{X: 19.7, Y: -3.25, Z: -1.1},
		{X: 0.1, Y: 1e-9, Z: -1.0999999},
	}
	rec := &ScanRecord{
		Source:    "track.json",
		PoseIndex: 3,
		Pose:      lidar.Pose{X: 1, Y: 2, Z: 0, Yaw: 0.25},
		Seed:      42,
	}

	id, err := store.SaveScan(ctx, rec, cloud)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.ScanID)
	assert.Equal(t, 3, rec.PointCount)

	got, err := store.LoadScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cloud, got)

	header, err := store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec, header)
}

func TestScanStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewScanStore(setupTestDB(t))

	_, err := store.LoadScan(ctx, "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)

	_, err = store.GetScan(ctx, "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)

	assert.ErrorIs(t, store.DeleteScan(ctx, "missing"), ErrScanNotFound)
}

func TestScanStore_ListScansNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewScanStore(setupTestDB(t))

	for i, ts := range []int64{100, 300, 200} {
		_, err := store.SaveScan(ctx, &ScanRecord{PoseIndex: i, CreatedAt: ts}, lidar.PointCloud{{X: float64(i)}})
		require.NoError(t, err)
	}

	scans, err := store.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{scans[0].PoseIndex, scans[1].PoseIndex, scans[2].PoseIndex})
}

func TestScanStore_EmptyCloud(t *testing.T) {
	ctx := context.Background()
	store := NewScanStore(setupTestDB(t))

	id, err := store.SaveScan(ctx, &ScanRecord{}, nil)
	require.NoError(t, err)

	got, err := store.LoadScan(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanStore_Detections(t *testing.T) {
	ctx := context.Background()
	store := NewScanStore(setupTestDB(t))

	id, err := store.SaveScan(ctx, &ScanRecord{}, lidar.PointCloud{{X: 3}})
	require.NoError(t, err)

	centroids := []l4perception.Centroid{
		{Label: 1, Position: r3.Vector{X: 4, Y: 1.5, Z: -0.9}, Count: 9},
		{Label: l4perception.NoiseLabel, Position: r3.Vector{X: 10}, Count: 2},
		{Label: 0, Position: r3.Vector{X: 2.95, Z: -0.95}, Count: 21},
	}
	require.NoError(t, store.SaveDetections(ctx, id, centroids))
	// Saving again replaces rather than duplicates.
	require.NoError(t, store.SaveDetections(ctx, id, centroids))

	got, err := store.LoadDetections(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []l4perception.Centroid{centroids[1], centroids[2], centroids[0]}, got)

	require.NoError(t, store.DeleteScan(ctx, id))
	got, err = store.LoadDetections(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got, "detections must be removed with their scan")

	_, err = store.LoadScan(ctx, id)
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestScanStore_CreatedAtFromClock(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	store := NewScanStoreWithClock(setupTestDB(t), clock)

	first, err := store.SaveScan(ctx, &ScanRecord{PoseIndex: 0}, lidar.PointCloud{{X: 1}})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := store.SaveScan(ctx, &ScanRecord{PoseIndex: 1}, lidar.PointCloud{{X: 2}})
	require.NoError(t, err)

	rec, err := store.GetScan(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, start.UnixNano(), rec.CreatedAt)

	scans, err := store.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, second, scans[0].ScanID)
}
