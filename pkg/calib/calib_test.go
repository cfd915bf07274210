package calib

import (
	"math"
	"testing"
)

// testConstants yields distanceToEmpty=9.0 and distanceToFull=1.0, the same
// geometry used by the end-to-end checks.
func testConstants() Constants {
	return Constants{
		TankHeight:     12.0,
		SensorOffset:   0.0,
		MinWaterHeight: 3.0,
		MaxWaterHeight: 11.0,
		PumpRawLow:     16,
		PumpRawHigh:    50,
	}
}

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	c, err := NewConverter(testConstants())
	if err != nil {
		t.Fatalf("NewConverter returned error: %v", err)
	}
	return c
}

func TestNewConverterDerivedDistances(t *testing.T) {
	c := newTestConverter(t)
	if c.DistanceToEmpty() != 9.0 {
		t.Errorf("DistanceToEmpty() = %v, want 9.0", c.DistanceToEmpty())
	}
	if c.DistanceToFull() != 1.0 {
		t.Errorf("DistanceToFull() = %v, want 1.0", c.DistanceToFull())
	}
}

func TestNewConverterRejectsDegenerateCalibration(t *testing.T) {
	flat := testConstants()
	flat.MinWaterHeight = 5.0
	flat.MaxWaterHeight = 5.0
	if _, err := NewConverter(flat); err == nil {
		t.Error("expected error for equal min/max water heights")
	}

	inverted := testConstants()
	inverted.MinWaterHeight = 11.0
	inverted.MaxWaterHeight = 3.0
	if _, err := NewConverter(inverted); err == nil {
		t.Error("expected error for inverted water heights")
	}

	pump := testConstants()
	pump.PumpRawHigh = pump.PumpRawLow
	if _, err := NewConverter(pump); err == nil {
		t.Error("expected error for degenerate pump range")
	}
}

func TestSensorToPercentEndpoints(t *testing.T) {
	c := newTestConverter(t)
	if got := c.SensorToPercent(9.0); got != 0 {
		t.Errorf("SensorToPercent(distanceToEmpty) = %v, want 0", got)
	}
	if got := c.SensorToPercent(1.0); got != 100 {
		t.Errorf("SensorToPercent(distanceToFull) = %v, want 100", got)
	}
}

func TestSensorToPercentMonotonic(t *testing.T) {
	c := newTestConverter(t)
	prev := math.Inf(1)
	for d := 1.0; d <= 9.0; d += 0.25 {
		got := c.SensorToPercent(d)
		if got > prev {
			t.Fatalf("SensorToPercent not non-increasing: f(%v) = %v > previous %v", d, got, prev)
		}
		prev = got
	}
}

func TestSensorToPercentClamps(t *testing.T) {
	c := newTestConverter(t)
	if got := c.SensorToPercent(50.0); got != c.SensorToPercent(9.0) {
		t.Errorf("SensorToPercent(50.0) = %v, want clamp to %v", got, c.SensorToPercent(9.0))
	}
	if got := c.SensorToPercent(-3.0); got != c.SensorToPercent(1.0) {
		t.Errorf("SensorToPercent(-3.0) = %v, want clamp to %v", got, c.SensorToPercent(1.0))
	}
}

func TestPumpToPercent(t *testing.T) {
	c := newTestConverter(t)
	if got := c.PumpToPercent(0); got != 0 {
		t.Errorf("PumpToPercent(0) = %v, want 0", got)
	}
	if got := c.PumpToPercent(-5); got != 0 {
		t.Errorf("PumpToPercent(-5) = %v, want 0", got)
	}

	got := c.PumpToPercent(30)
	want := (30.0 - 16.0) / (50.0 - 16.0) * 100.0 // ~41.18
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("PumpToPercent(30) = %v, want %v", got, want)
	}
}

// Raw values above the calibrated range intentionally pass through without
// clamping; changing this would silently hide calibration overshoot.
func TestPumpToPercentDoesNotClampAbove100(t *testing.T) {
	c := newTestConverter(t)
	if got := c.PumpToPercent(60); got <= 100 {
		t.Errorf("PumpToPercent(60) = %v, want value above 100", got)
	}
}

func TestEndToEndConversion(t *testing.T) {
	c := newTestConverter(t)
	upper := c.SensorToPercent(6.0)
	if math.Abs(upper-37.5) > 1e-9 {
		t.Errorf("SensorToPercent(6.0) = %v, want 37.5", upper)
	}
	pump := c.PumpToPercent(30)
	if math.Abs(pump-41.18) > 0.01 {
		t.Errorf("PumpToPercent(30) = %v, want ~41.18", pump)
	}
}
