package lidar

import (
	"math"

	"github.com/golang/geo/r3"
)

// BeamDirection returns the unit direction of a beam fired at the given
// channel elevation and azimuth (both radians). Negative elevations point
// below the horizontal. Azimuth is measured from +X towards +Y.
func BeamDirection(elevation, azimuth float64) r3.Vector {
	cosElevation := math.Cos(elevation)
	return r3.Vector{
		X: cosElevation * math.Cos(azimuth),
		Y: cosElevation * math.Sin(azimuth),
		Z: math.Sin(elevation),
	}
}

// ApplyPose applies a 4x4 row-major transform T to point (x,y,z).
// T is expected as [16]float64 row-major: m00,m01,m02,m03, m10,...
func ApplyPose(x, y, z float64, T [16]float64) (wx, wy, wz float64) {
	wx = T[0]*x + T[1]*y + T[2]*z + T[3]
	wy = T[4]*x + T[5]*y + T[6]*z + T[7]
	wz = T[8]*x + T[9]*y + T[10]*z + T[11]
	return
}

// HorizontalRange returns the distance from the origin to p projected on the ground plane.
func HorizontalRange(p r3.Vector) float64 {
	return math.Hypot(p.X, p.Y)
}
