package l4perception

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/conescan/internal/config"
	"github.com/banshee-data/conescan/internal/lidar"
)

// Detection is the output of one pass of the recovery pipeline.
type Detection struct {
	Filtered  lidar.PointCloud // points left after floor removal
	Centroids []Centroid
}

// Pipeline recovers marker centroids from a sensor-frame scan: floor removal
// followed by clustering and centroid extraction.
type Pipeline struct {
	ground     *GroundPlaneEstimator
	clusterer  Clusterer
	clustering ClusteringParams
}

// NewPipeline wires an estimator and a clusterer together.
func NewPipeline(ground *GroundPlaneEstimator, clusterer Clusterer, params ClusteringParams) *Pipeline {
	return &Pipeline{ground: ground, clusterer: clusterer, clustering: params}
}

// PipelineFromTuning builds a Pipeline with the DBSCAN clusterer, sampling
// RANSAC triples from src.
func PipelineFromTuning(cfg *config.TuningConfig, src rand.Source) (*Pipeline, error) {
	ground, err := NewGroundPlaneEstimator(GroundParamsFromTuning(cfg), src)
	if err != nil {
		return nil, err
	}
	return NewPipeline(ground, NewDBSCAN(), ClusteringParams{
		Eps:        cfg.GetClusterEps(),
		MinSamples: cfg.GetClusterMinSamples(),
	}), nil
}

// Detect removes the floor from cloud and extracts centroids from the rest.
func (p *Pipeline) Detect(cloud lidar.PointCloud) (Detection, error) {
	filtered, err := p.ground.RemoveFloor(cloud)
	if err != nil {
		return Detection{}, fmt.Errorf("remove floor: %w", err)
	}
	centroids, err := ExtractCentroids(filtered, p.clusterer, p.clustering.Eps, p.clustering.MinSamples)
	if err != nil {
		return Detection{Filtered: filtered}, fmt.Errorf("extract centroids: %w", err)
	}
	return Detection{Filtered: filtered, Centroids: centroids}, nil
}
