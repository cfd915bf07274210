package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"tankbridge/pkg/calib"
)

// Config is the runtime configuration surface of the bridge. It is read-only
// at steady state; SIGHUP triggers a Load from the backing source.
type Config interface {
	// Serial device.
	SerialPort() string
	BaudRate() int
	ReadTimeout() time.Duration
	ReconnectDelay() time.Duration
	SettleDelay() time.Duration
	HandshakeToken() string

	// Control plane.
	PushURL() string
	PullURL() string
	HTTPTimeout() time.Duration

	// Loop timing.
	PushInterval() time.Duration
	PullInterval() time.Duration
	SerialReadInterval() time.Duration
	IdleSleep() time.Duration

	// Persistence.
	AuditPath() string
	RotateSchedule() string
	EventDBPath() string

	// Control.
	Calibration() calib.Constants
	DefaultSetpoint() float64

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
