package l4perception

import "github.com/banshee-data/conescan/internal/lidar"

// Clusterer abstracts the density clustering primitive used after floor
// removal, so any implementation honouring the label contract can be swapped
// in without touching centroid extraction.
type Clusterer interface {
	// Cluster returns one label per input point, in input order.
	// NoiseLabel marks points that belong to no cluster.
	Cluster(points lidar.PointCloud, eps float64, minSamples int) ([]int, error)
}

// ClusterFunc adapts an ordinary function to the Clusterer interface.
type ClusterFunc func(points lidar.PointCloud, eps float64, minSamples int) ([]int, error)

// Cluster calls f(points, eps, minSamples).
func (f ClusterFunc) Cluster(points lidar.PointCloud, eps float64, minSamples int) ([]int, error) {
	return f(points, eps, minSamples)
}

// ClusteringParams holds clustering algorithm parameters.
type ClusteringParams struct {
	Eps        float64 // Neighbourhood radius in metres
	MinSamples int     // Minimum neighbourhood size, the point itself included, for a core point
}
