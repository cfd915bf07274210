// Package calib maps raw sensor and pump readings to calibrated percentages.
package calib

import (
	pkgerrors "github.com/pkg/errors"
)

// Constants holds the tank geometry and pump calibration values. All
// distances are in the same unit as the sensor output (centimeters on the
// reference hardware).
type Constants struct {
	// TankHeight is the total height of the tank.
	TankHeight float64
	// SensorOffset is the distance between the sensor and the top of the tank.
	SensorOffset float64
	// MinWaterHeight is the water height considered 0%.
	MinWaterHeight float64
	// MaxWaterHeight is the water height considered 100%.
	MaxWaterHeight float64
	// PumpRawLow and PumpRawHigh bound the raw pump actuation range that maps
	// to 0-100%.
	PumpRawLow  float64
	PumpRawHigh float64
}

// Converter performs the unit conversions. The derived distances are computed
// once; a Converter is immutable after construction.
type Converter struct {
	distanceToEmpty float64
	distanceToFull  float64
	pumpLow         float64
	pumpHigh        float64
}

// NewConverter validates the constants and precomputes the derived distances.
// Degenerate calibration is a configuration error and must abort startup.
func NewConverter(c Constants) (*Converter, error) {
	sensorToBottom := c.TankHeight - c.SensorOffset
	distanceToEmpty := sensorToBottom - c.MinWaterHeight
	distanceToFull := sensorToBottom - c.MaxWaterHeight

	if distanceToFull >= distanceToEmpty {
		return nil, pkgerrors.Errorf(
			"degenerate tank calibration: distance-to-full (%.2f) must be less than distance-to-empty (%.2f)",
			distanceToFull, distanceToEmpty)
	}
	if c.PumpRawHigh <= c.PumpRawLow {
		return nil, pkgerrors.Errorf(
			"degenerate pump calibration: raw high (%.2f) must be greater than raw low (%.2f)",
			c.PumpRawHigh, c.PumpRawLow)
	}

	return &Converter{
		distanceToEmpty: distanceToEmpty,
		distanceToFull:  distanceToFull,
		pumpLow:         c.PumpRawLow,
		pumpHigh:        c.PumpRawHigh,
	}, nil
}

// DistanceToEmpty returns the sensor distance that reads as 0% full.
func (c *Converter) DistanceToEmpty() float64 {
	return c.distanceToEmpty
}

// DistanceToFull returns the sensor distance that reads as 100% full.
func (c *Converter) DistanceToFull() float64 {
	return c.distanceToFull
}

// SensorToPercent maps a sensor distance to a fill percentage. The distance is
// clamped to [distanceToFull, distanceToEmpty] first, so out-of-range readings
// saturate at 0 or 100 instead of going negative or above 100.
func (c *Converter) SensorToPercent(distance float64) float64 {
	clamped := distance
	if clamped > c.distanceToEmpty {
		clamped = c.distanceToEmpty
	}
	if clamped < c.distanceToFull {
		clamped = c.distanceToFull
	}
	return (c.distanceToEmpty - clamped) / (c.distanceToEmpty - c.distanceToFull) * 100.0
}

// PumpToPercent maps a raw pump value to a percentage of the calibrated
// actuation range. Values at or below zero read as 0%. Values above the upper
// bound are NOT clamped and read above 100%; the device calibration assumes
// raw values stay inside the range, and overshoot is intentionally visible.
func (c *Converter) PumpToPercent(raw int) float64 {
	if raw <= 0 {
		return 0
	}
	return (float64(raw) - c.pumpLow) / (c.pumpHigh - c.pumpLow) * 100.0
}
