package telemetry

import "time"

// Raw holds the last reading decoded from the device, in device units.
type Raw struct {
	UpperDistance float64 `json:"upper_distance"`
	LowerDistance float64 `json:"lower_distance"`
	PumpRaw       int     `json:"pump_raw"`
}

// Sample is one calibrated telemetry snapshot, computed on each push tick
// from the retained Raw reading plus the setpoint in effect at that moment.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	UpperPercent float64   `json:"upper_percent"`
	LowerPercent float64   `json:"lower_percent"`
	PumpPercent  float64   `json:"pump_percent"`
	Setpoint     float64   `json:"setpoint"`
}
