package l4perception

import "github.com/banshee-data/conescan/internal/lidar"

type voxelKey struct{ x, y, z int64 }

// VoxelDownsample keeps one representative point per cubic voxel of side
// leafSize: the point closest to the mean of the points in that voxel.
// Output order follows the first appearance of each voxel in the input.
// A non-positive leafSize returns a copy of the cloud.
func VoxelDownsample(cloud lidar.PointCloud, leafSize float64) lidar.PointCloud {
	if len(cloud) == 0 {
		return nil
	}
	if leafSize <= 0 {
		return cloud.Clone()
	}

	si := &spatialIndex{cellSize: leafSize}
	var order []voxelKey
	members := make(map[voxelKey][]int)
	for i, p := range cloud {
		k := voxelKey{si.cell(p.X), si.cell(p.Y), si.cell(p.Z)}
		if _, ok := members[k]; !ok {
			order = append(order, k)
		}
		members[k] = append(members[k], i)
	}

	out := make(lidar.PointCloud, 0, len(order))
	for _, k := range order {
		idx := members[k]
		var mean = cloud[idx[0]]
		for _, i := range idx[1:] {
			mean = mean.Add(cloud[i])
		}
		mean = mean.Mul(1 / float64(len(idx)))

		best := idx[0]
		bestD2 := cloud[best].Sub(mean).Norm2()
		for _, i := range idx[1:] {
			if d2 := cloud[i].Sub(mean).Norm2(); d2 < bestD2 {
				best, bestD2 = i, d2
			}
		}
		out = append(out, cloud[best])
	}
	return out
}
