package lidar

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
)

// PointCloud is an ordered sequence of Cartesian points. Simulated scans are
// channel-major: all beams of the first channel, then the second, and so on.
// Stages never modify a cloud they receive; they return a new one.
type PointCloud []r3.Vector

// Len returns the number of points in the cloud.
func (pc PointCloud) Len() int { return len(pc) }

// Clone returns a copy that shares no backing array with pc.
func (pc PointCloud) Clone() PointCloud {
	if pc == nil {
		return nil
	}
	out := make(PointCloud, len(pc))
	copy(out, pc)
	return out
}

// Bounds returns the axis-aligned bounding box of the cloud.
// ok is false for an empty cloud.
func (pc PointCloud) Bounds() (lo, hi r3.Vector, ok bool) {
	if len(pc) == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	lo, hi = pc[0], pc[0]
	for _, p := range pc[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		lo.Z = math.Min(lo.Z, p.Z)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
		hi.Z = math.Max(hi.Z, p.Z)
	}
	return lo, hi, true
}

// Shuffled returns a randomly permuted copy of the cloud.
// Recorded scans are shuffled before they are written so that the
// fixed-prefix downsample used by floor removal sees every channel.
func (pc PointCloud) Shuffled(src rand.Source) PointCloud {
	out := pc.Clone()
	rng := rand.New(src)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
