package l4perception

import "github.com/golang/geo/r3"

// Plane is the set of points p with Normal·p + D = 0. Normal is unit length
// for every plane produced by ComputePlanes, so Distance is metric.
type Plane struct {
	Normal r3.Vector
	D      float64
}

// Distance returns the signed distance of p from the plane.
func (pl Plane) Distance(p r3.Vector) float64 {
	return pl.Normal.Dot(p) + pl.D
}

// Centroid is the mean position of the points that share a cluster label.
type Centroid struct {
	Label    int
	Position r3.Vector
	Count    int
}

// NoiseLabel is the label density clusterers assign to unclustered points.
const NoiseLabel = -1
