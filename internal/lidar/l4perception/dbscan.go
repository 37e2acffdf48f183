package l4perception

import (
	"fmt"
	"math"

	"github.com/banshee-data/conescan/internal/lidar"
)

// estimatedPointsPerCell sizes the spatial index map up front.
const estimatedPointsPerCell = 4

// spatialIndex buckets points into square xy cells of side CellSize so a
// neighbourhood query only visits the 3x3 block around the query cell.
// Cell size must be at least the query radius.
type spatialIndex struct {
	cellSize float64
	grid     map[int64][]int // cell ID → point indices
}

func newSpatialIndex(cellSize float64, points lidar.PointCloud) *spatialIndex {
	si := &spatialIndex{
		cellSize: cellSize,
		grid:     make(map[int64][]int, len(points)/estimatedPointsPerCell),
	}
	for i, p := range points {
		id := cellID(si.cell(p.X), si.cell(p.Y))
		si.grid[id] = append(si.grid[id], i)
	}
	return si
}

func (si *spatialIndex) cell(v float64) int64 {
	return int64(math.Floor(v / si.cellSize))
}

// cellID pairs two signed cell coordinates into one key: zigzag encoding to
// map them onto non-negative integers, then Szudzik's pairing function.
func cellID(cx, cy int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cy >= 0 {
		b = 2 * cy
	} else {
		b = -2*cy - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// regionQuery returns the indices of all points within eps (3D Euclidean)
// of points[idx], idx itself included.
func (si *spatialIndex) regionQuery(points lidar.PointCloud, idx int, eps float64) []int {
	p := points[idx]
	eps2 := eps * eps
	cx, cy := si.cell(p.X), si.cell(p.Y)

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range si.grid[cellID(cx+dx, cy+dy)] {
				if p.Sub(points[j]).Norm2() <= eps2 {
					neighbors = append(neighbors, j)
				}
			}
		}
	}
	return neighbors
}

// DBSCAN is a grid-indexed density clusterer. Labels are 0..k-1 in the order
// clusters are discovered while scanning the input; NoiseLabel marks noise.
// Output depends only on the input order, so it is deterministic.
type DBSCAN struct{}

// NewDBSCAN returns a DBSCAN clusterer.
func NewDBSCAN() *DBSCAN { return &DBSCAN{} }

// Cluster implements Clusterer.
func (d *DBSCAN) Cluster(points lidar.PointCloud, eps float64, minSamples int) ([]int, error) {
	if eps <= 0 {
		return nil, fmt.Errorf("dbscan: eps must be positive, got %f", eps)
	}
	if minSamples < 1 {
		return nil, fmt.Errorf("dbscan: min samples must be at least 1, got %d", minSamples)
	}
	if len(points) == 0 {
		return []int{}, nil
	}

	n := len(points)
	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	clusterID := 0
	index := newSpatialIndex(eps, points)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}

		neighbors := index.regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			labels[i] = -1
			continue
		}

		clusterID++
		expandCluster(points, index, labels, i, neighbors, clusterID, eps, minSamples)
	}

	for i, l := range labels {
		if l > 0 {
			labels[i] = l - 1
		} else {
			labels[i] = NoiseLabel
		}
	}
	return labels, nil
}

// expandCluster grows a cluster from a core point, breadth first.
func expandCluster(points lidar.PointCloud, si *spatialIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, eps float64, minSamples int) {

	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue
		}

		labels[idx] = clusterID
		if more := si.regionQuery(points, idx, eps); len(more) >= minSamples {
			neighbors = append(neighbors, more...)
		}
	}
}

var _ Clusterer = (*DBSCAN)(nil)
