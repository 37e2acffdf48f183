package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/monitoring"
)

var simLogf = monitoring.Prefixed("Sim")

// ScanAssembler produces a full multi-channel scan for a vehicle pose.
type ScanAssembler struct {
	params Params
	caster *RayCaster
}

// NewScanAssembler creates an assembler. All channels share one noise
// source so a given src reproduces the same scan.
func NewScanAssembler(params Params, src rand.Source) (*ScanAssembler, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation params: %w", err)
	}
	return &ScanAssembler{
		params: params,
		caster: NewRayCaster(params, src),
	}, nil
}

// Params returns the assembler configuration.
func (sa *ScanAssembler) Params() Params { return sa.params }

// Caster exposes the underlying ray caster, mainly for its statistics.
func (sa *ScanAssembler) Caster() *RayCaster { return sa.caster }

// ApexesFor lifts ground-plane marker positions to cone apex positions.
func (sa *ScanAssembler) ApexesFor(markers []r2.Point) []r3.Vector {
	apexes := make([]r3.Vector, len(markers))
	for i, m := range markers {
		apexes[i] = r3.Vector{X: m.X, Y: m.Y, Z: sa.params.ConeHeight}
	}
	return apexes
}

// GeneratePointCloud simulates a scan of markers standing on the ground at
// the given 2D positions, from a vehicle at pose. The result is expressed in
// the sensor frame and is channel-major with
// len(ChannelAngles) * SweepCount() points.
func (sa *ScanAssembler) GeneratePointCloud(pose lidar.Pose, markers []r2.Point) (lidar.PointCloud, error) {
	return sa.GeneratePointCloudApexes(pose, sa.ApexesFor(markers))
}

// GeneratePointCloudApexes is GeneratePointCloud for markers given by their
// apex positions.
func (sa *ScanAssembler) GeneratePointCloudApexes(pose lidar.Pose, apexes []r3.Vector) (lidar.PointCloud, error) {
	if err := pose.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pose: %w", err)
	}

	sensor := pose.Mounted(sa.params.SensorDisplacement, sa.params.SensorOrientation)
	cloud := make(lidar.PointCloud, 0, len(sa.params.ChannelAngles)*sa.params.SweepCount())

	for i, angle := range sa.params.ChannelAngles {
		points, err := sa.caster.ScanChannel(sensor, apexes, angle)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		cloud = append(cloud, points...)
	}

	beams, markerHits, groundHits, rejected := sa.caster.Stats()
	simLogf("scan at (%.2f, %.2f, yaw %.3f): %d markers, %d beams, %d marker hits, %d ground hits, %d rejected by band",
		pose.X, pose.Y, pose.Yaw, len(apexes), beams, markerHits, groundHits, rejected)
	sa.caster.ResetStats()

	return sensor.ToSensorFrame(cloud), nil
}
