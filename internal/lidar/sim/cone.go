// Package sim simulates a multi-channel rotating range sensor observing
// identical conical markers standing on a flat ground plane at z=0.
//
// The pipeline is ScanAssembler -> RayCaster (one channel at a time) ->
// Cone (one marker per beam), with an analytic ground-plane fallback so every
// beam produces exactly one point.
package sim

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Cone models the lateral surface of a marker as the quadric
// h²x² + h²y² − r²z² = 0 expressed in a frame centred on the apex.
// Hits count as physical marker returns only below EffectiveHeight.
type Cone struct {
	Radius          float64
	Height          float64
	EffectiveHeight float64

	quadric *mat.DiagDense
}

// NewCone builds the quadric for a marker of the given geometry.
func NewCone(radius, height, effectiveHeight float64) Cone {
	h2, r2 := height*height, radius*radius
	return Cone{
		Radius:          radius,
		Height:          height,
		EffectiveHeight: effectiveHeight,
		quadric:         mat.NewDiagDense(3, []float64{h2, h2, -r2}),
	}
}

// Intersect returns the distance along direction from the beam origin to the
// cone surface, where delta is the beam origin minus the cone apex.
//
// With a = dᵀQd, b = δᵀQd and c = δᵀQδ the hit distance t solves
// a·t² + 2b·t + c = 0. The nearest non-negative root wins; ok is false when
// the beam misses, lies in the degenerate plane, or only hits behind the origin.
// The returned hit may lie on the upper nappe or below the ground; callers
// check it against the height band.
func (c Cone) Intersect(delta, direction r3.Vector) (float64, bool) {
	dv := mat.NewVecDense(3, []float64{direction.X, direction.Y, direction.Z})
	pv := mat.NewVecDense(3, []float64{delta.X, delta.Y, delta.Z})

	a := mat.Inner(dv, c.quadric, dv)
	b := mat.Inner(pv, c.quadric, dv)
	cc := mat.Inner(pv, c.quadric, pv)

	if a == 0 {
		if b == 0 {
			return 0, false
		}
		return -0.5 * cc / b, true
	}

	disc := (b/a)*(b/a) - cc/a
	if disc < 0 {
		return 0, false
	}

	sq := math.Sqrt(disc)
	t1 := -b/a + sq
	t2 := -b/a - sq

	switch {
	case t1 >= 0 && t2 >= 0:
		return math.Min(t1, t2), true
	case t1 >= 0:
		return t1, true
	case t2 >= 0:
		return t2, true
	}
	return 0, false
}

// InBand reports whether a hit at the given height above the marker base is a
// physical return, i.e. strictly inside (0, EffectiveHeight).
func (c Cone) InBand(heightAboveBase float64) bool {
	return 0 < heightAboveBase && heightAboveBase < c.EffectiveHeight
}

// HitHeight returns the height above the marker base of a point, for a cone
// whose apex is at apex.
func (c Cone) HitHeight(hit, apex r3.Vector) float64 {
	return hit.Z - (apex.Z - c.Height)
}
