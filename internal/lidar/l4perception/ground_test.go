package l4perception

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/sim"
	"github.com/banshee-data/conescan/internal/monitoring"
)

func muteLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

// floorGrid returns a flat 20x20 grid of points at height z.
func floorGrid(z float64) lidar.PointCloud {
	var cloud lidar.PointCloud
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			cloud = append(cloud, r3.Vector{X: 0.5 + 0.5*float64(i), Y: -5 + 0.5*float64(j), Z: z})
		}
	}
	return cloud
}

// blob returns a small 3D cluster of 27 points around center.
func blob(center r3.Vector, spread float64) lidar.PointCloud {
	var cloud lidar.PointCloud
	for _, dx := range []float64{-spread, 0, spread} {
		for _, dy := range []float64{-spread, 0, spread} {
			for _, dz := range []float64{-spread, 0, spread} {
				cloud = append(cloud, center.Add(r3.Vector{X: dx, Y: dy, Z: dz}))
			}
		}
	}
	return cloud
}

func newTestEstimator(t *testing.T, seed uint64) *GroundPlaneEstimator {
	t.Helper()
	g, err := NewGroundPlaneEstimator(DefaultGroundParams(), rand.NewPCG(seed, seed))
	require.NoError(t, err)
	return g
}

func TestRemoveFloor_FloorWithCluster(t *testing.T) {
	muteLogs(t)
	floor := floorGrid(0)
	cluster := blob(r3.Vector{X: 5, Y: 2, Z: 0.3}, 0.05)
	cloud := append(floor.Clone(), cluster...)

	g := newTestEstimator(t, 1)
	out, err := g.RemoveFloor(cloud)
	require.NoError(t, err)

	floorLeft := 0
	for _, p := range out {
		if math.Abs(p.Z) < 1e-9 {
			floorLeft++
		}
	}
	assert.LessOrEqual(t, float64(floorLeft), 0.05*float64(len(floor)), "at least 95%% of the floor must be removed")
	assert.Subset(t, out, cluster, "every elevated point must survive")
}

func TestRemoveFloor_Idempotent(t *testing.T) {
	muteLogs(t)
	cloud := append(floorGrid(0), blob(r3.Vector{X: 5, Y: 2, Z: 0.3}, 0.05)...)

	g := newTestEstimator(t, 3)
	once, err := g.RemoveFloor(cloud)
	require.NoError(t, err)
	twice, err := g.RemoveFloor(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

// A second pass over a simulated scan sees only marker returns. Those line up
// on level planes with hundreds of inliers, but only over a few degrees of
// azimuth, so nothing more is removed.
func TestRemoveFloor_SimulatedScanTwice(t *testing.T) {
	muteLogs(t)
	params := sim.DefaultParams()
	markers := []r2.Point{{X: 3, Y: 0}, {X: 5, Y: 1.5}, {X: 4, Y: -1.5}}
	floorZ := -params.SensorDisplacement.Z

	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			assembler, err := sim.NewScanAssembler(params, rand.NewPCG(seed, seed))
			require.NoError(t, err)
			scan, err := assembler.GeneratePointCloud(lidar.Pose{}, markers)
			require.NoError(t, err)
			cloud := scan.Shuffled(rand.NewPCG(seed, 100+seed))

			g := newTestEstimator(t, seed)
			once, err := g.RemoveFloor(cloud)
			require.NoError(t, err)
			require.NotEmpty(t, once)
			for _, p := range once {
				require.Greater(t, p.Z, floorZ+0.05, "floor point survived the first pass")
			}

			_, _, err = g.EstimateFloor(once)
			assert.ErrorIs(t, err, ErrNoFloorFound)

			twice, err := g.RemoveFloor(once)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestRemoveFloor_DoesNotModifyInput(t *testing.T) {
	muteLogs(t)
	cloud := append(floorGrid(0), blob(r3.Vector{X: 5, Y: 2, Z: 0.3}, 0.05)...)
	before := cloud.Clone()

	_, err := newTestEstimator(t, 1).RemoveFloor(cloud)
	require.NoError(t, err)
	assert.Equal(t, before, cloud)
}

func TestRemoveFloor_EmptyAndUndersized(t *testing.T) {
	muteLogs(t)
	g := newTestEstimator(t, 1)

	tests := []struct {
		name  string
		cloud lidar.PointCloud
	}{
		{"nil", nil},
		{"two points", lidar.PointCloud{{X: 1}, {X: 2}}},
		{"all outside crop", lidar.PointCloud{{X: -5}, {X: 25}, {Y: 11}, {Y: -11}, {X: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := g.RemoveFloor(tt.cloud)
			require.NoError(t, err)
			assert.NotNil(t, out)
			assert.Empty(t, out)
		})
	}
}

func TestRemoveFloor_CollinearInput(t *testing.T) {
	muteLogs(t)
	var line lidar.PointCloud
	for i := 0; i < 50; i++ {
		line = append(line, r3.Vector{X: 0.2 * float64(i)})
	}

	g := newTestEstimator(t, 1)
	_, _, err := g.EstimateFloor(line)
	assert.ErrorIs(t, err, ErrInsufficientPointDiversity)

	_, err = g.RemoveFloor(line)
	assert.ErrorIs(t, err, ErrInsufficientPointDiversity)
	assert.False(t, errors.Is(err, ErrNoFloorFound))
}

func TestEstimateFloor_NoFloor(t *testing.T) {
	muteLogs(t)
	g := newTestEstimator(t, 1)
	cluster := blob(r3.Vector{X: 5, Z: 0.3}, 0.05)

	_, inliers, err := g.EstimateFloor(cluster)
	assert.ErrorIs(t, err, ErrNoFloorFound)
	assert.Less(t, inliers, g.Params().MinFloorInliers)

	out, err := g.RemoveFloor(cluster)
	require.NoError(t, err)
	assert.Equal(t, cluster, out)
}

func TestEstimateFloor_RejectsWall(t *testing.T) {
	muteLogs(t)
	var wall lidar.PointCloud
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			wall = append(wall, r3.Vector{X: 5, Y: -2 + 0.2*float64(i), Z: -1 + 0.1*float64(j)})
		}
	}

	g := newTestEstimator(t, 1)
	_, _, err := g.EstimateFloor(wall)
	assert.ErrorIs(t, err, ErrNoFloorFound)

	out, err := g.RemoveFloor(wall)
	require.NoError(t, err)
	assert.Equal(t, wall, out)
}

func TestEstimateFloor_Tilt(t *testing.T) {
	muteLogs(t)
	tilted := func(deg float64) lidar.PointCloud {
		slope := math.Tan(deg * math.Pi / 180)
		cloud := floorGrid(0)
		for i := range cloud {
			cloud[i].Z = slope * cloud[i].X
		}
		return cloud
	}

	t.Run("gentle slope is a floor", func(t *testing.T) {
		floor, inliers, err := newTestEstimator(t, 2).EstimateFloor(tilted(5))
		require.NoError(t, err)
		assert.Equal(t, 400, inliers)
		assert.InDelta(t, 5, math.Acos(math.Abs(floor.Normal.Z))*180/math.Pi, 1e-6)
	})

	t.Run("steep slope is not", func(t *testing.T) {
		_, _, err := newTestEstimator(t, 2).EstimateFloor(tilted(30))
		assert.ErrorIs(t, err, ErrNoFloorFound)
	})
}

func TestEstimateFloor_NarrowSpread(t *testing.T) {
	muteLogs(t)
	// A level strip straight ahead, only about 11 degrees wide.
	var strip lidar.PointCloud
	for i := 0; i <= 20; i++ {
		for j := 0; j <= 20; j++ {
			strip = append(strip, r3.Vector{X: 5 + 0.25*float64(i), Y: -0.5 + 0.05*float64(j), Z: -1.1})
		}
	}

	g := newTestEstimator(t, 4)
	_, inliers, err := g.EstimateFloor(strip)
	assert.ErrorIs(t, err, ErrNoFloorFound)
	assert.Equal(t, len(strip), inliers)

	params := DefaultGroundParams()
	params.MinFloorSpread = 0
	loose, err := NewGroundPlaneEstimator(params, rand.NewPCG(4, 4))
	require.NoError(t, err)
	out, err := loose.RemoveFloor(strip)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLevelPlanes(t *testing.T) {
	up := Plane{Normal: r3.Vector{Z: 1}}
	down := Plane{Normal: r3.Vector{Z: -1}, D: 2}
	wall := Plane{Normal: r3.Vector{X: 1}}
	ramp := Plane{Normal: r3.Vector{X: math.Sin(0.3), Z: math.Cos(0.3)}}

	assert.Equal(t, []Plane{up, down}, LevelPlanes([]Plane{up, wall, down, ramp}, 0.2))
	assert.Equal(t, []Plane{up, down, ramp}, LevelPlanes([]Plane{up, wall, down, ramp}, 0.4))
	assert.Empty(t, LevelPlanes([]Plane{wall}, 0.4))
}

func TestInlierSpread(t *testing.T) {
	ground := Plane{Normal: r3.Vector{Z: 1}}
	points := lidar.PointCloud{
		{X: 1}, {X: 2}, // same sector
		{Y: 1},
		{X: -1, Y: 0.001},
		{X: 0, Y: -3, Z: 1}, // off the plane
	}
	assert.InDelta(t, 3*2*math.Pi/spreadSectors, InlierSpread(points, ground, 0.02), 1e-12)
	assert.Zero(t, InlierSpread(nil, ground, 0.02))

	assert.InDelta(t, 2*math.Pi, InlierSpread(floorRing(), ground, 0.02), 1e-12)
}

// floorRing returns one level point in the middle of every azimuth sector.
func floorRing() lidar.PointCloud {
	cloud := make(lidar.PointCloud, spreadSectors)
	for i := range cloud {
		a := -math.Pi + (float64(i)+0.5)*2*math.Pi/spreadSectors
		cloud[i] = r3.Vector{X: 4 * math.Cos(a), Y: 4 * math.Sin(a)}
	}
	return cloud
}

func TestEstimateFloor_TooFewPoints(t *testing.T) {
	_, _, err := newTestEstimator(t, 1).EstimateFloor(lidar.PointCloud{{X: 1}, {Y: 1}})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestEstimateFloor_SeedDeterminism(t *testing.T) {
	cloud := append(floorGrid(-1.1), blob(r3.Vector{X: 5, Y: 2, Z: -0.8}, 0.05)...)

	p1, n1, err1 := newTestEstimator(t, 9).EstimateFloor(cloud)
	p2, n2, err2 := newTestEstimator(t, 9).EstimateFloor(cloud)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, p1, p2)
	assert.Equal(t, n1, n2)

	assert.InDelta(t, 1, math.Abs(p1.Normal.Z), 1e-12)
	assert.InDelta(t, 0, p1.Distance(r3.Vector{X: 3, Y: 1, Z: -1.1}), 1e-12)
}

func TestComputePlanes(t *testing.T) {
	triples := []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 2, Y: 0, Z: 0}, // repeated point
		{X: 0, Y: 0, Z: 2}, {X: 2, Y: 0, Z: 2}, {X: 0, Y: 2, Z: 2},
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}, // collinear
		{X: 9, Y: 9, Z: 9}, // trailing partial triple
	}

	planes := ComputePlanes(triples)
	require.Len(t, planes, 2)

	assert.Equal(t, r3.Vector{Z: 1}, planes[0].Normal)
	assert.Zero(t, planes[0].D)
	assert.Equal(t, r3.Vector{Z: 1}, planes[1].Normal)
	assert.Equal(t, -2.0, planes[1].D)
	assert.InDelta(t, 0, planes[1].Distance(r3.Vector{X: 7, Y: -4, Z: 2}), 1e-12)
}

func TestFindBestPlane(t *testing.T) {
	ground := Plane{Normal: r3.Vector{Z: 1}}
	raised := Plane{Normal: r3.Vector{Z: 1}, D: -5}
	points := lidar.PointCloud{{Z: 0}, {X: 1, Z: 0.01}, {Z: 5}, {Y: 2, Z: 5}}

	t.Run("ties keep first", func(t *testing.T) {
		best, n := FindBestPlane(points, []Plane{raised, ground}, 0.1)
		assert.Equal(t, raised, best)
		assert.Equal(t, 2, n)
	})

	t.Run("most inliers wins", func(t *testing.T) {
		more := append(points.Clone(), r3.Vector{X: 3})
		best, n := FindBestPlane(more, []Plane{raised, ground}, 0.1)
		assert.Equal(t, ground, best)
		assert.Equal(t, 3, n)
	})

	t.Run("threshold is strict", func(t *testing.T) {
		_, n := FindBestPlane(lidar.PointCloud{{Z: 0.5}, {Z: 0.25}}, []Plane{ground}, 0.5)
		assert.Equal(t, 1, n)
	})

	t.Run("order invariant", func(t *testing.T) {
		cloud := append(floorGrid(0), blob(r3.Vector{X: 5, Y: 2, Z: 0.3}, 0.05)...)
		planes := ComputePlanes([]r3.Vector{
			{X: 5, Y: 2, Z: 0.3}, {X: 5.05, Y: 2, Z: 0.3}, {X: 5, Y: 2.05, Z: 0.35},
			{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 1, Y: 4},
		})
		b1, n1 := FindBestPlane(cloud, planes, 0.02)
		b2, n2 := FindBestPlane(cloud.Shuffled(rand.NewPCG(5, 5)), planes, 0.02)
		assert.Equal(t, b1, b2)
		assert.Equal(t, n1, n2)
	})

	t.Run("no planes", func(t *testing.T) {
		_, n := FindBestPlane(points, nil, 0.1)
		assert.Equal(t, -1, n)
	})
}

func TestCropRectangle(t *testing.T) {
	p := GroundParams{MinX: 0, MaxX: 10, MinY: -1, MaxY: 1}
	cloud := lidar.PointCloud{{X: 0}, {X: 0.1}, {X: 10}, {X: 5, Y: 1}, {X: 5, Y: 0.99, Z: 7}}
	assert.Equal(t, lidar.PointCloud{{X: 0.1}, {X: 5, Y: 0.99, Z: 7}}, CropRectangle(cloud, p))
}

func TestGroundParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultGroundParams().Validate())

	bad := []func(*GroundParams){
		func(p *GroundParams) { p.MinX = p.MaxX },
		func(p *GroundParams) { p.MaxY = p.MinY - 1 },
		func(p *GroundParams) { p.NumPlanes = 0 },
		func(p *GroundParams) { p.DownsampleSize = 2 },
		func(p *GroundParams) { p.DistanceThreshold = 0 },
		func(p *GroundParams) { p.MinFloorInliers = -1 },
		func(p *GroundParams) { p.MaxFloorTilt = 0 },
		func(p *GroundParams) { p.MinFloorSpread = 7 },
	}
	for i, mutate := range bad {
		p := DefaultGroundParams()
		mutate(&p)
		assert.Error(t, p.Validate(), "case %d", i)
		_, err := NewGroundPlaneEstimator(p, rand.NewPCG(1, 1))
		assert.Error(t, err, "case %d", i)
	}
}
