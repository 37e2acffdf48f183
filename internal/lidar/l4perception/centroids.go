package l4perception

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/conescan/internal/lidar"
)

// ErrLabelCount is returned when a clusterer does not return exactly one
// label per point.
var ErrLabelCount = errors.New("clusterer returned wrong number of labels")

// ExtractCentroids clusters cloud and returns the mean position of every
// distinct label, in the order labels are first encountered. Points labelled
// NoiseLabel form a centroid like any other label; see DropNoise.
// Errors from the clusterer are returned unchanged.
func ExtractCentroids(cloud lidar.PointCloud, clusterer Clusterer, eps float64, minSamples int) ([]Centroid, error) {
	if len(cloud) == 0 {
		return nil, nil
	}

	labels, err := clusterer.Cluster(cloud, eps, minSamples)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(cloud) {
		return nil, fmt.Errorf("%w: %d labels for %d points", ErrLabelCount, len(labels), len(cloud))
	}

	var order []int
	members := make(map[int][]int)
	for i, l := range labels {
		if _, seen := members[l]; !seen {
			order = append(order, l)
		}
		members[l] = append(members[l], i)
	}

	centroids := make([]Centroid, 0, len(order))
	for _, l := range order {
		idx := members[l]
		xs := make([]float64, len(idx))
		ys := make([]float64, len(idx))
		zs := make([]float64, len(idx))
		for k, i := range idx {
			xs[k], ys[k], zs[k] = cloud[i].X, cloud[i].Y, cloud[i].Z
		}
		centroids = append(centroids, Centroid{
			Label:    l,
			Position: r3.Vector{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)},
			Count:    len(idx),
		})
	}
	return centroids, nil
}

// DropNoise returns the centroids whose label is not NoiseLabel.
func DropNoise(centroids []Centroid) []Centroid {
	out := make([]Centroid, 0, len(centroids))
	for _, c := range centroids {
		if c.Label != NoiseLabel {
			out = append(out, c)
		}
	}
	return out
}

// Positions returns the centroid positions as a point cloud.
func Positions(centroids []Centroid) lidar.PointCloud {
	out := make(lidar.PointCloud, len(centroids))
	for i, c := range centroids {
		out[i] = c.Position
	}
	return out
}
