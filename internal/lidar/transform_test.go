package lidar

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestBeamDirection_Axes(t *testing.T) {
	tests := []struct {
		name      string
		elevation float64
		azimuth   float64
		want      r3.Vector
	}{
		{"forward", 0, 0, r3.Vector{X: 1}},
		{"left", 0, math.Pi / 2, r3.Vector{Y: 1}},
		{"straight down", -math.Pi / 2, 0, r3.Vector{Z: -1}},
		{"45 below forward", -math.Pi / 4, 0, r3.Vector{X: math.Sqrt2 / 2, Z: -math.Sqrt2 / 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BeamDirection(tt.elevation, tt.azimuth)
			if got.Sub(tt.want).Norm() > 1e-12 {
				t.Errorf("BeamDirection(%v, %v) = %v, want %v", tt.elevation, tt.azimuth, got, tt.want)
			}
		})
	}
}

func TestApplyPose_Translation(t *testing.T) {
	T := [16]float64{
		1, 0, 0, 2,
		0, 1, 0, -1,
		0, 0, 1, 0.5,
		0, 0, 0, 1,
	}
	x, y, z := ApplyPose(1, 1, 1, T)
	if x != 3 || y != 0 || z != 1.5 {
		t.Errorf("ApplyPose = (%v, %v, %v), want (3, 0, 1.5)", x, y, z)
	}
}

func TestHorizontalRange_IgnoresHeight(t *testing.T) {
	if got := HorizontalRange(r3.Vector{X: 3, Y: 4, Z: -10}); got != 5 {
		t.Errorf("HorizontalRange = %v, want 5", got)
	}
}
