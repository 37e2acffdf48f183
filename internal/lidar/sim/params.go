package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/conescan/internal/config"
)

// Params is the immutable configuration of a simulated scan: marker geometry,
// sensor mounting and the beam pattern. Angles are in radians.
// Params is passed by value; the ChannelAngles slice must not be modified
// after construction.
type Params struct {
	ConeRadius          float64
	ConeHeight          float64
	ConeEffectiveHeight float64

	SensorDisplacement r3.Vector
	SensorOrientation  float64

	FieldWidth        float64
	FieldCenter       float64
	AngularResolution float64
	ChannelAngles     []float64

	// DistanceUncertainty is the standard deviation of the zero-mean
	// Gaussian noise added to every beam distance (metres).
	DistanceUncertainty float64
}

// DefaultParams returns the reference sensor and marker configuration.
func DefaultParams() Params {
	p, err := ParamsFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(err)
	}
	return p
}

// ParamsFromTuning converts a tuning file into simulation parameters.
func ParamsFromTuning(cfg *config.TuningConfig) (Params, error) {
	disp := cfg.GetSensorDisplacement()
	p := Params{
		ConeRadius:          cfg.GetConeRadius(),
		ConeHeight:          cfg.GetConeHeight(),
		ConeEffectiveHeight: cfg.GetConeEffectiveHeight(),
		SensorDisplacement:  r3.Vector{X: disp[0], Y: disp[1], Z: disp[2]},
		SensorOrientation:   degToRad(cfg.GetSensorOrientationDeg()),
		FieldWidth:          degToRad(cfg.GetScanFieldWidthDeg()),
		FieldCenter:         degToRad(cfg.GetScanFieldCenterDeg()),
		AngularResolution:   degToRad(cfg.GetAngularResolutionDeg()),
		ChannelAngles:       cfg.GetChannelAnglesRad(),
		DistanceUncertainty: cfg.GetDistanceUncertainty(),
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks geometric consistency of the parameters.
func (p Params) Validate() error {
	if p.ConeRadius <= 0 || p.ConeHeight <= 0 {
		return fmt.Errorf("cone radius and height must be positive, got r=%f h=%f", p.ConeRadius, p.ConeHeight)
	}
	if p.ConeEffectiveHeight <= 0 || p.ConeEffectiveHeight > p.ConeHeight {
		return fmt.Errorf("effective height %f must be in (0, %f]", p.ConeEffectiveHeight, p.ConeHeight)
	}
	if p.AngularResolution <= 0 {
		return fmt.Errorf("angular resolution must be positive, got %f", p.AngularResolution)
	}
	if p.FieldWidth <= 0 || p.FieldWidth > 2*math.Pi {
		return fmt.Errorf("field width must be in (0, 2pi], got %f", p.FieldWidth)
	}
	if len(p.ChannelAngles) == 0 {
		return errors.New("at least one channel angle is required")
	}
	for i, a := range p.ChannelAngles {
		if a >= 0 || a <= -math.Pi/2 {
			return fmt.Errorf("channel %d angle %f must be in (-pi/2, 0)", i, a)
		}
	}
	if p.DistanceUncertainty < 0 {
		return fmt.Errorf("distance uncertainty must be non-negative, got %f", p.DistanceUncertainty)
	}
	return nil
}

// SweepCount is the number of beams fired per channel: one per angular
// resolution step over a full revolution.
func (p Params) SweepCount() int {
	return int(math.Round(2 * math.Pi / p.AngularResolution))
}

// SweepAngles returns SweepCount azimuths spaced evenly, endpoints included,
// across [center - width/2, center + width/2].
func (p Params) SweepAngles() []float64 {
	n := p.SweepCount()
	start := p.FieldCenter - 0.5*p.FieldWidth
	angles := make([]float64, n)
	if n == 1 {
		angles[0] = start
		return angles
	}
	step := p.FieldWidth / float64(n-1)
	for i := range angles {
		angles[i] = start + float64(i)*step
	}
	return angles
}

// MaxScanDistance is the horizontal range beyond which no channel can hit a
// marker from a sensor mounted at sensorZ: the shallowest channel reaches the
// ground at sensorZ/|tan(angle)|, padded by the marker radius.
func (p Params) MaxScanDistance(sensorZ float64) float64 {
	minTan := math.Inf(1)
	for _, a := range p.ChannelAngles {
		minTan = math.Min(minTan, math.Abs(math.Tan(a)))
	}
	return p.ConeRadius + sensorZ/minTan
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
