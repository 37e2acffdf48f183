// Package l4perception owns the perception layer of the recovery pipeline.
//
// Responsibilities: floor removal by RANSAC plane consensus, density
// clustering of the remaining points and centroid extraction.
// Key types: Plane, GroundPlaneEstimator, Centroid.
//
// Dependency rule: l4perception depends on internal/lidar for the point
// cloud model, never on the simulator. No SQL/database code is allowed in
// this package.
package l4perception
