package l4perception

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/conescan/internal/config"
	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/monitoring"
)

var groundLogf = monitoring.Prefixed("Ground")

var (
	// ErrTooFewPoints is returned by EstimateFloor when fewer than three
	// points are available to fit a plane.
	ErrTooFewPoints = errors.New("fewer than 3 points to fit a plane")
	// ErrInsufficientPointDiversity means every sampled triple was collinear,
	// so no candidate plane could be scored.
	ErrInsufficientPointDiversity = errors.New("insufficient point diversity: no non-degenerate candidate plane")
	// ErrNoFloorFound means no candidate plane looks like a floor: none is
	// level enough, or the best level plane has too few inliers or they
	// cover too narrow a range of azimuths.
	ErrNoFloorFound = errors.New("no floor plane found")
)

// GroundParams configures floor removal. Crop bounds are exclusive and in the
// sensor frame.
type GroundParams struct {
	MinX, MaxX float64
	MinY, MaxY float64

	NumPlanes         int     // candidate planes per estimate
	DownsampleSize    int     // prefix of the cropped cloud used for fitting and scoring
	DistanceThreshold float64 // inlier distance from a plane (metres)
	MinFloorInliers   int     // best plane below this count is not a floor

	// MaxFloorTilt is the largest angle between a candidate normal and the
	// vertical axis (radians). Steeper planes are never scored.
	MaxFloorTilt float64
	// MinFloorSpread is the azimuth range around the sensor, in radians, that
	// the floor inliers must cover. Marker faces are narrow in azimuth; the
	// floor is seen across the whole field of view.
	MinFloorSpread float64
}

// spreadSectors is the number of equal azimuth sectors used to measure how
// widely a plane's inliers surround the sensor.
const spreadSectors = 72

// DefaultGroundParams returns the reference floor removal configuration.
func DefaultGroundParams() GroundParams {
	return GroundParamsFromTuning(config.EmptyTuningConfig())
}

// GroundParamsFromTuning reads floor removal settings from a tuning config.
func GroundParamsFromTuning(cfg *config.TuningConfig) GroundParams {
	return GroundParams{
		MinX:              cfg.GetCropMinX(),
		MaxX:              cfg.GetCropMaxX(),
		MinY:              cfg.GetCropMinY(),
		MaxY:              cfg.GetCropMaxY(),
		NumPlanes:         cfg.GetNumPlanes(),
		DownsampleSize:    cfg.GetDownsampleSize(),
		DistanceThreshold: cfg.GetDistToPlane(),
		MinFloorInliers:   cfg.GetMinFloorInliers(),
		MaxFloorTilt:      cfg.GetFloorMaxTiltDeg() * math.Pi / 180,
		MinFloorSpread:    cfg.GetFloorMinSpreadDeg() * math.Pi / 180,
	}
}

// Validate checks the parameters for consistency.
func (p GroundParams) Validate() error {
	if p.MinX >= p.MaxX || p.MinY >= p.MaxY {
		return fmt.Errorf("empty crop rectangle x=(%f, %f) y=(%f, %f)", p.MinX, p.MaxX, p.MinY, p.MaxY)
	}
	if p.NumPlanes < 1 {
		return fmt.Errorf("num planes must be at least 1, got %d", p.NumPlanes)
	}
	if p.DownsampleSize < 3 {
		return fmt.Errorf("downsample size must be at least 3, got %d", p.DownsampleSize)
	}
	if p.DistanceThreshold <= 0 {
		return fmt.Errorf("distance threshold must be positive, got %f", p.DistanceThreshold)
	}
	if p.MinFloorInliers < 0 {
		return fmt.Errorf("min floor inliers must be non-negative, got %d", p.MinFloorInliers)
	}
	if p.MaxFloorTilt <= 0 || p.MaxFloorTilt > math.Pi/2 {
		return fmt.Errorf("max floor tilt must be in (0, pi/2], got %f", p.MaxFloorTilt)
	}
	if p.MinFloorSpread < 0 || p.MinFloorSpread > 2*math.Pi {
		return fmt.Errorf("min floor spread must be in [0, 2pi], got %f", p.MinFloorSpread)
	}
	return nil
}

// CropRectangle keeps the points strictly inside the parameters' xy
// rectangle, preserving order.
func CropRectangle(cloud lidar.PointCloud, p GroundParams) lidar.PointCloud {
	out := make(lidar.PointCloud, 0, len(cloud))
	for _, pt := range cloud {
		if pt.X > p.MinX && pt.X < p.MaxX && pt.Y > p.MinY && pt.Y < p.MaxY {
			out = append(out, pt)
		}
	}
	return out
}

// ComputePlanes fits a plane to each consecutive triple of points. Triples
// whose edge vectors are parallel (including repeated points) have no
// defined normal and are dropped. A trailing partial triple is ignored.
func ComputePlanes(triples []r3.Vector) []Plane {
	planes := make([]Plane, 0, len(triples)/3)
	for i := 0; i+2 < len(triples); i += 3 {
		p0 := triples[i]
		normal := triples[i+1].Sub(p0).Cross(triples[i+2].Sub(p0))
		norm := normal.Norm()
		if norm == 0 {
			continue
		}
		normal = normal.Mul(1 / norm)
		planes = append(planes, Plane{Normal: normal, D: -normal.Dot(p0)})
	}
	return planes
}

// FindBestPlane scores each plane by the number of points strictly within
// threshold of it and returns the first plane with the highest count.
// It returns a zero Plane and -1 when planes is empty.
func FindBestPlane(points lidar.PointCloud, planes []Plane, threshold float64) (Plane, int) {
	if len(planes) == 0 {
		return Plane{}, -1
	}
	if len(points) == 0 {
		return planes[0], 0
	}

	// Signed distances for every plane/point pair: [n d] × [p 1]ᵀ.
	coeffs := mat.NewDense(len(planes), 4, nil)
	for i, pl := range planes {
		coeffs.SetRow(i, []float64{pl.Normal.X, pl.Normal.Y, pl.Normal.Z, pl.D})
	}
	homog := mat.NewDense(4, len(points), nil)
	for j, pt := range points {
		homog.Set(0, j, pt.X)
		homog.Set(1, j, pt.Y)
		homog.Set(2, j, pt.Z)
		homog.Set(3, j, 1)
	}
	var dist mat.Dense
	dist.Mul(coeffs, homog)

	bestIdx, bestCount := 0, -1
	for i := range planes {
		count := 0
		for _, d := range dist.RawRowView(i) {
			if math.Abs(d) < threshold {
				count++
			}
		}
		if count > bestCount {
			bestIdx, bestCount = i, count
		}
	}
	return planes[bestIdx], bestCount
}

// GroundPlaneEstimator finds and removes the dominant floor plane of a scan.
// Triple sampling draws from the estimator's own generator, so an estimator
// is not safe for concurrent use.
type GroundPlaneEstimator struct {
	params GroundParams
	rng    *rand.Rand
}

// NewGroundPlaneEstimator creates an estimator sampling from src.
func NewGroundPlaneEstimator(params GroundParams, src rand.Source) (*GroundPlaneEstimator, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ground params: %w", err)
	}
	return &GroundPlaneEstimator{params: params, rng: rand.New(src)}, nil
}

// Params returns the estimator configuration.
func (g *GroundPlaneEstimator) Params() GroundParams { return g.params }

// LevelPlanes keeps the planes whose normal is within maxTilt radians of the
// vertical axis, in either orientation.
func LevelPlanes(planes []Plane, maxTilt float64) []Plane {
	minNormalZ := math.Cos(maxTilt)
	level := make([]Plane, 0, len(planes))
	for _, pl := range planes {
		if math.Abs(pl.Normal.Z) >= minNormalZ {
			level = append(level, pl)
		}
	}
	return level
}

// InlierSpread returns the azimuth range, in radians, covered by the points
// strictly within threshold of plane. Azimuth is measured around the sensor
// z axis and quantised to spreadSectors equal sectors, so the result is a
// multiple of 2π/spreadSectors.
func InlierSpread(points lidar.PointCloud, plane Plane, threshold float64) float64 {
	var occupied [spreadSectors]bool
	count := 0
	for _, pt := range points {
		if math.Abs(plane.Distance(pt)) >= threshold {
			continue
		}
		sector := int((math.Atan2(pt.Y, pt.X) + math.Pi) / (2 * math.Pi) * spreadSectors)
		sector = min(max(sector, 0), spreadSectors-1)
		if !occupied[sector] {
			occupied[sector] = true
			count++
		}
	}
	return float64(count) * 2 * math.Pi / spreadSectors
}

// EstimateFloor fits the floor plane of an already cropped cloud. It returns
// the selected plane with its inlier count over the downsample set.
//
// The downsample set is the first DownsampleSize points of cropped; NumPlanes
// triples are drawn from it uniformly with replacement. Only level candidates
// are scored, and the winner must have MinFloorInliers inliers spanning at
// least MinFloorSpread of azimuth. Otherwise the error wraps ErrNoFloorFound,
// which is what a cloud that already had its floor removed produces.
func (g *GroundPlaneEstimator) EstimateFloor(cropped lidar.PointCloud) (Plane, int, error) {
	if len(cropped) < 3 {
		return Plane{}, 0, ErrTooFewPoints
	}

	sample := cropped[:min(len(cropped), g.params.DownsampleSize)]
	triples := make([]r3.Vector, 3*g.params.NumPlanes)
	for i := range triples {
		triples[i] = sample[g.rng.IntN(len(sample))]
	}

	planes := ComputePlanes(triples)
	if len(planes) == 0 {
		return Plane{}, 0, ErrInsufficientPointDiversity
	}

	level := LevelPlanes(planes, g.params.MaxFloorTilt)
	if len(level) == 0 {
		return Plane{}, 0, fmt.Errorf("%w: all %d candidate planes tilt more than %.1f°",
			ErrNoFloorFound, len(planes), g.params.MaxFloorTilt*180/math.Pi)
	}

	best, inliers := FindBestPlane(sample, level, g.params.DistanceThreshold)
	if inliers < g.params.MinFloorInliers {
		return best, inliers, fmt.Errorf("%w: best plane has %d inliers, need %d",
			ErrNoFloorFound, inliers, g.params.MinFloorInliers)
	}
	if spread := InlierSpread(sample, best, g.params.DistanceThreshold); spread < g.params.MinFloorSpread {
		return best, inliers, fmt.Errorf("%w: best plane inliers span %.0f° of azimuth, need %.0f°",
			ErrNoFloorFound, spread*180/math.Pi, g.params.MinFloorSpread*180/math.Pi)
	}
	return best, inliers, nil
}

// RemoveFloor crops cloud to the region of interest, estimates the floor and
// returns the cropped points farther than the distance threshold from it.
// The input is not modified.
//
// Fewer than three cropped points give an empty result. When no plane looks
// like a floor the cropped cloud is returned as is, so feeding the output
// back in returns it unchanged.
func (g *GroundPlaneEstimator) RemoveFloor(cloud lidar.PointCloud) (lidar.PointCloud, error) {
	cropped := CropRectangle(cloud, g.params)
	if len(cropped) < 3 {
		return lidar.PointCloud{}, nil
	}

	floor, inliers, err := g.EstimateFloor(cropped)
	if errors.Is(err, ErrNoFloorFound) {
		groundLogf("%v; keeping %d cropped points", err, len(cropped))
		return cropped, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(lidar.PointCloud, 0, len(cropped))
	for _, pt := range cropped {
		if math.Abs(floor.Distance(pt)) > g.params.DistanceThreshold {
			out = append(out, pt)
		}
	}

	groundLogf("floor n=(%.3f, %.3f, %.3f) d=%.3f with %d inliers: %d of %d cropped points kept",
		floor.Normal.X, floor.Normal.Y, floor.Normal.Z, floor.D, inliers, len(out), len(cropped))
	return out, nil
}
