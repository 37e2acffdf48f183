package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for simulation and
// recovery parameters. Every field is optional: omitted fields fall back to
// the values returned by the matching Get* accessor, so partial files are safe.
//
// Angles in the file are expressed in degrees except the channel elevation
// list, which is kept in radians to match the sensor datasheet.
type TuningConfig struct {
	// Marker geometry
	ConeRadius          *float64 `json:"cone_radius,omitempty"`
	ConeHeight          *float64 `json:"cone_height,omitempty"`
	ConeEffectiveHeight *float64 `json:"cone_effective_height,omitempty"`

	// Sensor mounting and scan pattern
	SensorDisplacement   *[3]float64 `json:"sensor_displacement,omitempty"`
	SensorOrientationDeg *float64    `json:"sensor_orientation_deg,omitempty"`
	ScanFieldWidthDeg    *float64    `json:"scan_field_width_deg,omitempty"`
	ScanFieldCenterDeg   *float64    `json:"scan_field_center_deg,omitempty"`
	AngularResolutionDeg *float64    `json:"angular_resolution_deg,omitempty"`
	ChannelAnglesRad     []float64   `json:"channel_angles_rad,omitempty"`
	DistanceUncertainty  *float64    `json:"distance_uncertainty,omitempty"`

	// Region of interest for floor removal (sensor frame, metres)
	CropMinX *float64 `json:"crop_min_x,omitempty"`
	CropMaxX *float64 `json:"crop_max_x,omitempty"`
	CropMinY *float64 `json:"crop_min_y,omitempty"`
	CropMaxY *float64 `json:"crop_max_y,omitempty"`

	// RANSAC floor estimation
	NumPlanes       *int     `json:"num_planes,omitempty"`
	DownsampleSize  *int     `json:"downsample_size,omitempty"`
	DistToPlane     *float64 `json:"dist_to_plane_threshold,omitempty"`
	MinFloorInliers *int     `json:"min_floor_inliers,omitempty"`

	// Floor plausibility: maximum tilt of the floor normal from vertical and
	// the minimum azimuth span its inliers must cover around the sensor.
	FloorMaxTiltDeg   *float64 `json:"floor_max_tilt_deg,omitempty"`
	FloorMinSpreadDeg *float64 `json:"floor_min_spread_deg,omitempty"`

	// Clustering
	ClusterEps        *float64 `json:"cluster_eps,omitempty"`
	ClusterMinSamples *int     `json:"cluster_min_samples,omitempty"`

	// Seed for noise injection and RANSAC sampling
	Seed *uint64 `json:"seed,omitempty"`
}

// Default values, matching config/tuning.defaults.json.
var (
	defaultChannelAnglesRad = []float64{-0.0557982, -0.111003, -0.165195, -0.218009, -0.269200, -0.318505}
	defaultDisplacement     = [3]float64{0.0, 0.0, 1.1}
)

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a fully populated TuningConfig holding the
// built-in defaults. It is equivalent to loading config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	disp := e.GetSensorDisplacement()
	return &TuningConfig{
		ConeRadius:           ptrFloat64(e.GetConeRadius()),
		ConeHeight:           ptrFloat64(e.GetConeHeight()),
		ConeEffectiveHeight:  ptrFloat64(e.GetConeEffectiveHeight()),
		SensorDisplacement:   &disp,
		SensorOrientationDeg: ptrFloat64(e.GetSensorOrientationDeg()),
		ScanFieldWidthDeg:    ptrFloat64(e.GetScanFieldWidthDeg()),
		ScanFieldCenterDeg:   ptrFloat64(e.GetScanFieldCenterDeg()),
		AngularResolutionDeg: ptrFloat64(e.GetAngularResolutionDeg()),
		ChannelAnglesRad:     e.GetChannelAnglesRad(),
		DistanceUncertainty:  ptrFloat64(e.GetDistanceUncertainty()),
		CropMinX:             ptrFloat64(e.GetCropMinX()),
		CropMaxX:             ptrFloat64(e.GetCropMaxX()),
		CropMinY:             ptrFloat64(e.GetCropMinY()),
		CropMaxY:             ptrFloat64(e.GetCropMaxY()),
		NumPlanes:            ptrInt(e.GetNumPlanes()),
		DownsampleSize:       ptrInt(e.GetDownsampleSize()),
		DistToPlane:          ptrFloat64(e.GetDistToPlane()),
		MinFloorInliers:      ptrInt(e.GetMinFloorInliers()),
		FloorMaxTiltDeg:      ptrFloat64(e.GetFloorMaxTiltDeg()),
		FloorMinSpreadDeg:    ptrFloat64(e.GetFloorMinSpreadDeg()),
		ClusterEps:           ptrFloat64(e.GetClusterEps()),
		ClusterMinSamples:    ptrInt(e.GetClusterMinSamples()),
		Seed:                 ptrUint64(e.GetSeed()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/sim/
		"../../../../" + DefaultConfigPath, // from internal/lidar/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values that are set are usable.
// Cross-field checks (effective height against height, crop bounds ordering)
// use the resolved values so a partial file is checked against the defaults.
func (c *TuningConfig) Validate() error {
	if c.ConeRadius != nil && *c.ConeRadius <= 0 {
		return fmt.Errorf("cone_radius must be positive, got %f", *c.ConeRadius)
	}
	if c.ConeHeight != nil && *c.ConeHeight <= 0 {
		return fmt.Errorf("cone_height must be positive, got %f", *c.ConeHeight)
	}
	if eff := c.GetConeEffectiveHeight(); eff <= 0 || eff > c.GetConeHeight() {
		return fmt.Errorf("cone_effective_height must be in (0, %f], got %f", c.GetConeHeight(), eff)
	}

	if c.AngularResolutionDeg != nil && *c.AngularResolutionDeg <= 0 {
		return fmt.Errorf("angular_resolution_deg must be positive, got %f", *c.AngularResolutionDeg)
	}
	if c.ScanFieldWidthDeg != nil && (*c.ScanFieldWidthDeg <= 0 || *c.ScanFieldWidthDeg > 360) {
		return fmt.Errorf("scan_field_width_deg must be in (0, 360], got %f", *c.ScanFieldWidthDeg)
	}
	for i, a := range c.ChannelAnglesRad {
		if a >= 0 || a <= -math.Pi/2 {
			return fmt.Errorf("channel_angles_rad[%d] must be in (-pi/2, 0), got %f", i, a)
		}
	}
	if c.DistanceUncertainty != nil && *c.DistanceUncertainty < 0 {
		return fmt.Errorf("distance_uncertainty must be non-negative, got %f", *c.DistanceUncertainty)
	}

	if c.GetCropMinX() >= c.GetCropMaxX() {
		return fmt.Errorf("crop_min_x (%f) must be less than crop_max_x (%f)", c.GetCropMinX(), c.GetCropMaxX())
	}
	if c.GetCropMinY() >= c.GetCropMaxY() {
		return fmt.Errorf("crop_min_y (%f) must be less than crop_max_y (%f)", c.GetCropMinY(), c.GetCropMaxY())
	}

	if c.NumPlanes != nil && *c.NumPlanes < 1 {
		return fmt.Errorf("num_planes must be at least 1, got %d", *c.NumPlanes)
	}
	if c.DownsampleSize != nil && *c.DownsampleSize < 3 {
		return fmt.Errorf("downsample_size must be at least 3, got %d", *c.DownsampleSize)
	}
	if c.DistToPlane != nil && *c.DistToPlane <= 0 {
		return fmt.Errorf("dist_to_plane_threshold must be positive, got %f", *c.DistToPlane)
	}
	if c.MinFloorInliers != nil && *c.MinFloorInliers < 0 {
		return fmt.Errorf("min_floor_inliers must be non-negative, got %d", *c.MinFloorInliers)
	}
	if c.FloorMaxTiltDeg != nil && (*c.FloorMaxTiltDeg <= 0 || *c.FloorMaxTiltDeg > 90) {
		return fmt.Errorf("floor_max_tilt_deg must be in (0, 90], got %f", *c.FloorMaxTiltDeg)
	}
	if c.FloorMinSpreadDeg != nil && (*c.FloorMinSpreadDeg < 0 || *c.FloorMinSpreadDeg > 360) {
		return fmt.Errorf("floor_min_spread_deg must be in [0, 360], got %f", *c.FloorMinSpreadDeg)
	}

	if c.ClusterEps != nil && *c.ClusterEps <= 0 {
		return fmt.Errorf("cluster_eps must be positive, got %f", *c.ClusterEps)
	}
	if c.ClusterMinSamples != nil && *c.ClusterMinSamples < 1 {
		return fmt.Errorf("cluster_min_samples must be at least 1, got %d", *c.ClusterMinSamples)
	}

	return nil
}

// GetConeRadius returns the cone_radius value or the default.
func (c *TuningConfig) GetConeRadius() float64 {
	if c.ConeRadius == nil {
		return 0.076
	}
	return *c.ConeRadius
}

// GetConeHeight returns the cone_height value or the default.
func (c *TuningConfig) GetConeHeight() float64 {
	if c.ConeHeight == nil {
		return 0.440
	}
	return *c.ConeHeight
}

// GetConeEffectiveHeight returns the cone_effective_height value or the default.
func (c *TuningConfig) GetConeEffectiveHeight() float64 {
	if c.ConeEffectiveHeight == nil {
		return 0.325
	}
	return *c.ConeEffectiveHeight
}

// GetSensorDisplacement returns the sensor_displacement value or the default.
func (c *TuningConfig) GetSensorDisplacement() [3]float64 {
	if c.SensorDisplacement == nil {
		return defaultDisplacement
	}
	return *c.SensorDisplacement
}

// GetSensorOrientationDeg returns the sensor_orientation_deg value or the default.
func (c *TuningConfig) GetSensorOrientationDeg() float64 {
	if c.SensorOrientationDeg == nil {
		return 0.0
	}
	return *c.SensorOrientationDeg
}

// GetScanFieldWidthDeg returns the scan_field_width_deg value or the default.
func (c *TuningConfig) GetScanFieldWidthDeg() float64 {
	if c.ScanFieldWidthDeg == nil {
		return 200.0
	}
	return *c.ScanFieldWidthDeg
}

// GetScanFieldCenterDeg returns the scan_field_center_deg value or the default.
func (c *TuningConfig) GetScanFieldCenterDeg() float64 {
	if c.ScanFieldCenterDeg == nil {
		return 0.0
	}
	return *c.ScanFieldCenterDeg
}

// GetAngularResolutionDeg returns the angular_resolution_deg value or the default.
func (c *TuningConfig) GetAngularResolutionDeg() float64 {
	if c.AngularResolutionDeg == nil {
		return 0.018
	}
	return *c.AngularResolutionDeg
}

// GetChannelAnglesRad returns a copy of the channel elevation angles or the default set.
func (c *TuningConfig) GetChannelAnglesRad() []float64 {
	src := c.ChannelAnglesRad
	if len(src) == 0 {
		src = defaultChannelAnglesRad
	}
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// GetDistanceUncertainty returns the distance_uncertainty value or the default.
func (c *TuningConfig) GetDistanceUncertainty() float64 {
	if c.DistanceUncertainty == nil {
		return 0.0003
	}
	return *c.DistanceUncertainty
}

// GetCropMinX returns the crop_min_x value or the default.
func (c *TuningConfig) GetCropMinX() float64 {
	if c.CropMinX == nil {
		return -1.0
	}
	return *c.CropMinX
}

// GetCropMaxX returns the crop_max_x value or the default.
func (c *TuningConfig) GetCropMaxX() float64 {
	if c.CropMaxX == nil {
		return 20.0
	}
	return *c.CropMaxX
}

// GetCropMinY returns the crop_min_y value or the default.
func (c *TuningConfig) GetCropMinY() float64 {
	if c.CropMinY == nil {
		return -10.0
	}
	return *c.CropMinY
}

// GetCropMaxY returns the crop_max_y value or the default.
func (c *TuningConfig) GetCropMaxY() float64 {
	if c.CropMaxY == nil {
		return 10.0
	}
	return *c.CropMaxY
}

// GetNumPlanes returns the num_planes value or the default.
func (c *TuningConfig) GetNumPlanes() int {
	if c.NumPlanes == nil {
		return 100
	}
	return *c.NumPlanes
}

// GetDownsampleSize returns the downsample_size value or the default.
func (c *TuningConfig) GetDownsampleSize() int {
	if c.DownsampleSize == nil {
		return 1000
	}
	return *c.DownsampleSize
}

// GetDistToPlane returns the dist_to_plane_threshold value or the default.
func (c *TuningConfig) GetDistToPlane() float64 {
	if c.DistToPlane == nil {
		return 0.02
	}
	return *c.DistToPlane
}

// GetMinFloorInliers returns the min_floor_inliers value or the default.
func (c *TuningConfig) GetMinFloorInliers() int {
	if c.MinFloorInliers == nil {
		return 30
	}
	return *c.MinFloorInliers
}

// GetFloorMaxTiltDeg returns the floor_max_tilt_deg value or the default.
func (c *TuningConfig) GetFloorMaxTiltDeg() float64 {
	if c.FloorMaxTiltDeg == nil {
		return 15.0
	}
	return *c.FloorMaxTiltDeg
}

// GetFloorMinSpreadDeg returns the floor_min_spread_deg value or the default.
func (c *TuningConfig) GetFloorMinSpreadDeg() float64 {
	if c.FloorMinSpreadDeg == nil {
		return 90.0
	}
	return *c.FloorMinSpreadDeg
}

// GetClusterEps returns the cluster_eps value or the default.
func (c *TuningConfig) GetClusterEps() float64 {
	if c.ClusterEps == nil {
		return 0.25
	}
	return *c.ClusterEps
}

// GetClusterMinSamples returns the cluster_min_samples value or the default.
func (c *TuningConfig) GetClusterMinSamples() int {
	if c.ClusterMinSamples == nil {
		return 3
	}
	return *c.ClusterMinSamples
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}
