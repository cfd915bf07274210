package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tankbridge/pkg/calib"
	"tankbridge/pkg/utils/ptr"
)

var defaultFileConfig = &RawFileConfig{
	SerialPort: ptr.To("/dev/ttyUSB0"),
	BaudRate:   ptr.To(9600),
	// Zero keeps drain reads non-blocking; a positive value bounds a single
	// read syscall instead.
	ReadTimeoutSeconds:    ptr.To(0.0),
	ReconnectDelaySeconds: ptr.To(5.0),
	SettleDelaySeconds:    ptr.To(2.0),
	HandshakeToken:        ptr.To("INTERLOCK"),

	PushURL:            ptr.To("http://127.0.0.1:2000/post"),
	PullURL:            ptr.To("http://127.0.0.1:2000/get"),
	HTTPTimeoutSeconds: ptr.To(2.0),

	PushIntervalSeconds:       ptr.To(1.0),
	PullIntervalSeconds:       ptr.To(1.0),
	SerialReadIntervalSeconds: ptr.To(0.1),
	IdleSleepSeconds:          ptr.To(0.05),

	AuditPath:      ptr.To("pid_data.csv"),
	RotateSchedule: ptr.To("@midnight"),
	EventDBPath:    ptr.To("tankbridge-events.db"),

	TankHeight:      ptr.To(15.0),
	SensorOffset:    ptr.To(1.3),
	MinWaterHeight:  ptr.To(2.5),
	MaxWaterHeight:  ptr.To(10.0),
	PumpRawLow:      ptr.To(16.0),
	PumpRawHigh:     ptr.To(50.0),
	DefaultSetpoint: ptr.To(85.0),
}

var _ Config = &File{}

// File is a Config backed by a JSON file. Absent fields fall back to the
// defaults, so an empty or missing file is a fully valid configuration.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

// RawFileConfig is the on-disk representation. Pointer fields distinguish
// "absent" from zero values.
type RawFileConfig struct {
	SerialPort            *string  `json:"serialPort,omitempty"`
	BaudRate              *int     `json:"baudRate,omitempty"`
	ReadTimeoutSeconds    *float64 `json:"readTimeoutSeconds,omitempty"`
	ReconnectDelaySeconds *float64 `json:"reconnectDelaySeconds,omitempty"`
	SettleDelaySeconds    *float64 `json:"settleDelaySeconds,omitempty"`
	HandshakeToken        *string  `json:"handshakeToken,omitempty"`

	PushURL            *string  `json:"pushUrl,omitempty"`
	PullURL            *string  `json:"pullUrl,omitempty"`
	HTTPTimeoutSeconds *float64 `json:"httpTimeoutSeconds,omitempty"`

	PushIntervalSeconds       *float64 `json:"pushIntervalSeconds,omitempty"`
	PullIntervalSeconds       *float64 `json:"pullIntervalSeconds,omitempty"`
	SerialReadIntervalSeconds *float64 `json:"serialReadIntervalSeconds,omitempty"`
	IdleSleepSeconds          *float64 `json:"idleSleepSeconds,omitempty"`

	AuditPath      *string `json:"auditPath,omitempty"`
	RotateSchedule *string `json:"rotateSchedule,omitempty"`
	EventDBPath    *string `json:"eventDbPath,omitempty"`

	TankHeight      *float64 `json:"tankHeight,omitempty"`
	SensorOffset    *float64 `json:"sensorOffset,omitempty"`
	MinWaterHeight  *float64 `json:"minWaterHeight,omitempty"`
	MaxWaterHeight  *float64 `json:"maxWaterHeight,omitempty"`
	PumpRawLow      *float64 `json:"pumpRawLow,omitempty"`
	PumpRawHigh     *float64 `json:"pumpRawHigh,omitempty"`
	DefaultSetpoint *float64 `json:"defaultSetpoint,omitempty"`
}

// NewRawFileConfigFromConfig captures a fully-resolved snapshot of c, with
// every default filled in. This is what the daemon reports over its API.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	cal := c.Calibration()
	rawConfig := &RawFileConfig{
		SerialPort:            ptr.To(c.SerialPort()),
		BaudRate:              ptr.To(c.BaudRate()),
		ReadTimeoutSeconds:    ptr.To(c.ReadTimeout().Seconds()),
		ReconnectDelaySeconds: ptr.To(c.ReconnectDelay().Seconds()),
		SettleDelaySeconds:    ptr.To(c.SettleDelay().Seconds()),
		HandshakeToken:        ptr.To(c.HandshakeToken()),

		PushURL:            ptr.To(c.PushURL()),
		PullURL:            ptr.To(c.PullURL()),
		HTTPTimeoutSeconds: ptr.To(c.HTTPTimeout().Seconds()),

		PushIntervalSeconds:       ptr.To(c.PushInterval().Seconds()),
		PullIntervalSeconds:       ptr.To(c.PullInterval().Seconds()),
		SerialReadIntervalSeconds: ptr.To(c.SerialReadInterval().Seconds()),
		IdleSleepSeconds:          ptr.To(c.IdleSleep().Seconds()),

		AuditPath:      ptr.To(c.AuditPath()),
		RotateSchedule: ptr.To(c.RotateSchedule()),
		EventDBPath:    ptr.To(c.EventDBPath()),

		TankHeight:      ptr.To(cal.TankHeight),
		SensorOffset:    ptr.To(cal.SensorOffset),
		MinWaterHeight:  ptr.To(cal.MinWaterHeight),
		MaxWaterHeight:  ptr.To(cal.MaxWaterHeight),
		PumpRawLow:      ptr.To(cal.PumpRawLow),
		PumpRawHigh:     ptr.To(cal.PumpRawHigh),
		DefaultSetpoint: ptr.To(c.DefaultSetpoint()),
	}

	return rawConfig, nil
}

// NewFile loads a File config from configPath.
func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// value returns *field when set, otherwise the package default.
func value[T any](field, def *T) T {
	if field != nil {
		return *field
	}
	return *def
}

func seconds(field, def *float64) time.Duration {
	return time.Duration(value(field, def) * float64(time.Second))
}

func (f *File) SerialPort() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.SerialPort, defaultFileConfig.SerialPort)
}

func (f *File) BaudRate() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.BaudRate, defaultFileConfig.BaudRate)
}

func (f *File) ReadTimeout() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.ReadTimeoutSeconds, defaultFileConfig.ReadTimeoutSeconds)
}

func (f *File) ReconnectDelay() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.ReconnectDelaySeconds, defaultFileConfig.ReconnectDelaySeconds)
}

func (f *File) SettleDelay() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.SettleDelaySeconds, defaultFileConfig.SettleDelaySeconds)
}

func (f *File) HandshakeToken() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.HandshakeToken, defaultFileConfig.HandshakeToken)
}

func (f *File) PushURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.PushURL, defaultFileConfig.PushURL)
}

func (f *File) PullURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.PullURL, defaultFileConfig.PullURL)
}

func (f *File) HTTPTimeout() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.HTTPTimeoutSeconds, defaultFileConfig.HTTPTimeoutSeconds)
}

func (f *File) PushInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.PushIntervalSeconds, defaultFileConfig.PushIntervalSeconds)
}

func (f *File) PullInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.PullIntervalSeconds, defaultFileConfig.PullIntervalSeconds)
}

func (f *File) SerialReadInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.SerialReadIntervalSeconds, defaultFileConfig.SerialReadIntervalSeconds)
}

func (f *File) IdleSleep() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return seconds(f.c.IdleSleepSeconds, defaultFileConfig.IdleSleepSeconds)
}

func (f *File) AuditPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.AuditPath, defaultFileConfig.AuditPath)
}

func (f *File) RotateSchedule() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.RotateSchedule, defaultFileConfig.RotateSchedule)
}

func (f *File) EventDBPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.EventDBPath, defaultFileConfig.EventDBPath)
}

func (f *File) Calibration() calib.Constants {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return calib.Constants{
		TankHeight:     value(f.c.TankHeight, defaultFileConfig.TankHeight),
		SensorOffset:   value(f.c.SensorOffset, defaultFileConfig.SensorOffset),
		MinWaterHeight: value(f.c.MinWaterHeight, defaultFileConfig.MinWaterHeight),
		MaxWaterHeight: value(f.c.MaxWaterHeight, defaultFileConfig.MaxWaterHeight),
		PumpRawLow:     value(f.c.PumpRawLow, defaultFileConfig.PumpRawLow),
		PumpRawHigh:    value(f.c.PumpRawHigh, defaultFileConfig.PumpRawHigh),
	}
}

func (f *File) DefaultSetpoint() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return value(f.c.DefaultSetpoint, defaultFileConfig.DefaultSetpoint)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file is the all-defaults configuration.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if err := json.Unmarshal(b, &conf); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f.c); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"serialPort":     f.SerialPort(),
		"baudRate":       f.BaudRate(),
		"pushUrl":        f.PushURL(),
		"pullUrl":        f.PullURL(),
		"pushInterval":   f.PushInterval(),
		"pullInterval":   f.PullInterval(),
		"auditPath":      f.AuditPath(),
		"rotateSchedule": f.RotateSchedule(),
		"eventDbPath":    f.EventDBPath(),
		"setpoint":       f.DefaultSetpoint(),
	}
}
