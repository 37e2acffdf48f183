package lidar

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Pose is a sensor or vehicle pose in the global frame: position in metres
// and heading (yaw) in radians about the vertical axis.
// Pose is a value type; every transform returns a new Pose.
type Pose struct {
	X, Y, Z float64
	Yaw     float64
}

// Position returns the translational part of the pose.
func (p Pose) Position() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Mounted applies a sensor mounting offset: the displacement is added to the
// position and the orientation offset to the yaw.
func (p Pose) Mounted(displacement r3.Vector, orientation float64) Pose {
	return Pose{
		X:   p.X + displacement.X,
		Y:   p.Y + displacement.Y,
		Z:   p.Z + displacement.Z,
		Yaw: p.Yaw + orientation,
	}
}

// ToSensorFrame expresses global points in the pose's local frame:
// the position is subtracted and the result rotated by -Yaw, so the pose
// heading becomes the +X axis. The input cloud is not modified.
func (p Pose) ToSensorFrame(cloud PointCloud) PointCloud {
	if len(cloud) == 0 {
		return PointCloud{}
	}
	cos, sin := math.Cos(p.Yaw), math.Sin(p.Yaw)
	origin := p.Position()

	out := make(PointCloud, len(cloud))
	for i, pt := range cloud {
		d := pt.Sub(origin)
		out[i] = r3.Vector{
			X: cos*d.X + sin*d.Y,
			Y: -sin*d.X + cos*d.Y,
			Z: d.Z,
		}
	}
	return out
}

// ToWorld maps a point from the pose's local frame back to the global frame.
// It is the inverse of ToSensorFrame.
func (p Pose) ToWorld(local r3.Vector) r3.Vector {
	wx, wy, wz := ApplyPose(local.X, local.Y, local.Z, p.Transform())
	return r3.Vector{X: wx, Y: wy, Z: wz}
}

// Transform returns the local-to-global rigid transform as a row-major 4x4 matrix.
func (p Pose) Transform() [16]float64 {
	cos, sin := math.Cos(p.Yaw), math.Sin(p.Yaw)
	return [16]float64{
		cos, -sin, 0, p.X,
		sin, cos, 0, p.Y,
		0, 0, 1, p.Z,
		0, 0, 0, 1,
	}
}

// Validate reports whether the pose holds finite values. Any finite pose
// has a rigid Transform.
func (p Pose) Validate() error {
	for name, v := range map[string]float64{"x": p.X, "y": p.Y, "z": p.Z, "yaw": p.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("pose %s is not finite: %v", name, v)
		}
	}
	return nil
}
