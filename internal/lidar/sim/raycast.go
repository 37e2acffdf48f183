package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/conescan/internal/lidar"
)

// ErrNoGroundIntersection is returned when a beam that missed every marker
// is level with or above the horizon and so never reaches the ground plane.
var ErrNoGroundIntersection = errors.New("beam does not intersect the ground plane")

// RayCaster fires one channel's sweep against a set of markers.
// It is not safe for concurrent use: the noise source and the statistics
// counters are shared across calls.
type RayCaster struct {
	params Params
	cone   Cone
	noise  distuv.Normal

	// Statistics (optional, for tuning and validation)
	beamsFired     int64
	markerHits     int64
	groundHits     int64
	rejectedByBand int64
}

// NewRayCaster creates a RayCaster whose distance noise is drawn from src.
// The same src yields the same sequence of scans.
func NewRayCaster(params Params, src rand.Source) *RayCaster {
	return &RayCaster{
		params: params,
		cone:   NewCone(params.ConeRadius, params.ConeHeight, params.ConeEffectiveHeight),
		noise:  distuv.Normal{Mu: 0, Sigma: params.DistanceUncertainty, Src: src},
	}
}

// Cone returns the marker model used by the caster.
func (rc *RayCaster) Cone() Cone { return rc.cone }

// ScanChannel sweeps a single channel at the given elevation and returns one
// point per beam, in sweep order, in the global frame. apexes are the 3D
// apex positions of the markers; pose is the mounted sensor pose.
//
// Each beam returns the nearest in-band marker hit when one survives the
// distance noise, and otherwise the point where it meets the ground plane.
func (rc *RayCaster) ScanChannel(pose lidar.Pose, apexes []r3.Vector, channelAngle float64) (lidar.PointCloud, error) {
	origin := pose.Position()
	visible := rc.markersInRange(origin, apexes)

	angles := rc.params.SweepAngles()
	points := make(lidar.PointCloud, len(angles))

	for i, angle := range angles {
		rc.beamsFired++
		direction := lidar.BeamDirection(channelAngle, angle+pose.Yaw)

		if hit, ok := rc.markerReturn(origin, direction, visible); ok {
			rc.markerHits++
			points[i] = hit
			continue
		}

		hit, err := rc.groundReturn(origin, direction)
		if err != nil {
			return nil, fmt.Errorf("channel %.4f rad, azimuth %.4f rad: %w", channelAngle, angle, err)
		}
		rc.groundHits++
		points[i] = hit
	}

	return points, nil
}

// markerReturn finds the nearest band-accepted cone hit along direction,
// perturbs its distance and accepts it only if the noisy point is still a
// physical marker return.
func (rc *RayCaster) markerReturn(origin, direction r3.Vector, apexes []r3.Vector) (r3.Vector, bool) {
	best := math.Inf(1)
	var bestApex r3.Vector

	for _, apex := range apexes {
		t, ok := rc.cone.Intersect(origin.Sub(apex), direction)
		if !ok {
			continue
		}
		hit := origin.Add(direction.Mul(t))
		if !rc.cone.InBand(rc.cone.HitHeight(hit, apex)) {
			continue
		}
		if t < best {
			best = t
			bestApex = apex
		}
	}

	if math.IsInf(best, 1) {
		return r3.Vector{}, false
	}

	hit := origin.Add(direction.Mul(best + rc.noise.Rand()))
	if !rc.cone.InBand(rc.cone.HitHeight(hit, bestApex)) {
		rc.rejectedByBand++
		return r3.Vector{}, false
	}
	return hit, true
}

// groundReturn intersects the beam with the z=0 plane analytically.
func (rc *RayCaster) groundReturn(origin, direction r3.Vector) (r3.Vector, error) {
	if direction.Z >= 0 {
		return r3.Vector{}, ErrNoGroundIntersection
	}
	distance := -origin.Z/direction.Z + rc.noise.Rand()
	return origin.Add(direction.Mul(distance)), nil
}

// markersInRange drops markers whose horizontal distance from the sensor is
// beyond the reach of the shallowest channel.
func (rc *RayCaster) markersInRange(origin r3.Vector, apexes []r3.Vector) []r3.Vector {
	maxDist := rc.params.MaxScanDistance(origin.Z)
	maxDist2 := maxDist * maxDist

	visible := make([]r3.Vector, 0, len(apexes))
	for _, apex := range apexes {
		dx, dy := apex.X-origin.X, apex.Y-origin.Y
		if dx*dx+dy*dy < maxDist2 {
			visible = append(visible, apex)
		}
	}
	return visible
}

// Stats returns counters accumulated since creation or the last ResetStats.
func (rc *RayCaster) Stats() (beams, markerHits, groundHits, rejectedByBand int64) {
	return rc.beamsFired, rc.markerHits, rc.groundHits, rc.rejectedByBand
}

// ResetStats clears accumulated statistics counters.
func (rc *RayCaster) ResetStats() {
	rc.beamsFired = 0
	rc.markerHits = 0
	rc.groundHits = 0
	rc.rejectedByBand = 0
}
