package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tankbridge/pkg/calib"
	"tankbridge/pkg/config"
	"tankbridge/pkg/events"
	"tankbridge/pkg/serial"
	"tankbridge/pkg/telemetry"
)

// deviceLink is what the loop needs from the serial layer.
type deviceLink interface {
	Connected() bool
	State() serial.State
	Connect(ctx context.Context, setpoint float64) error
	WriteSetpoint(setpoint float64) error
	ReadAvailable() ([]string, error)
	Close() error
}

// remoteSync is what the loop needs from the control-plane layer.
type remoteSync interface {
	Push(sample telemetry.Sample) error
	Pull(current float64) (float64, bool, error)
}

// auditLog is what the loop needs from the audit trail.
type auditLog interface {
	Append(sample telemetry.Sample) error
}

// Status is the view of the loop state exposed over the local API.
type Status struct {
	ConnectionState string            `json:"connectionState"`
	Setpoint        float64           `json:"setpoint"`
	LastReading     telemetry.Raw     `json:"lastReading"`
	LastSample      *telemetry.Sample `json:"lastSample,omitempty"`
}

// Loop is the scheduler at the center of the bridge. It owns the retained
// raw reading and the current setpoint, and multiplexes serial ingestion,
// telemetry push, and setpoint pull on independent timers from a single
// goroutine. The mutex exists only for the local API, which reads state from
// the HTTP handler goroutines; the loop itself is the sole writer.
type Loop struct {
	cfg     config.Config
	link    deviceLink
	decoder *telemetry.Decoder
	conv    *calib.Converter
	remote  remoteSync
	audit   auditLog
	events  *events.Store

	mu           sync.RWMutex
	raw          telemetry.Raw
	setpoint     float64
	lastSample   telemetry.Sample
	hasSample    bool
	writePending bool

	lastRead time.Time
	lastPush time.Time
	lastPull time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewLoop wires a Loop. The setpoint starts at the configured default until
// the first successful pull reports otherwise.
func NewLoop(
	cfg config.Config,
	link deviceLink,
	decoder *telemetry.Decoder,
	conv *calib.Converter,
	remote remoteSync,
	audit auditLog,
	eventStore *events.Store,
) *Loop {
	return &Loop{
		cfg:      cfg,
		link:     link,
		decoder:  decoder,
		conv:     conv,
		remote:   remote,
		audit:    audit,
		events:   eventStore,
		setpoint: cfg.DefaultSetpoint(),
		now:      time.Now,
	}
}

// Run drives the loop until ctx is canceled, then closes the serial handle.
// The initial connect happens before the first iteration so the push and
// pull timers start from a connected state, as the device does on power-up.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		if err := l.link.Close(); err != nil {
			logrus.Errorf("failed to close serial link: %v", err)
		}
	}()

	l.connect(ctx)

	start := l.now()
	l.lastRead, l.lastPush, l.lastPull = start, start, start

	for {
		if ctx.Err() != nil {
			return
		}
		l.iterate(ctx)

		idle := time.NewTimer(l.cfg.IdleSleep())
		select {
		case <-ctx.Done():
			idle.Stop()
			return
		case <-idle.C:
		}
	}
}

// iterate runs one scheduler pass. Order matters: reads come first so the
// freshest data feeds a push in the same pass, and the reconnect check comes
// last so a failure from the earlier steps is healed before the next read.
func (l *Loop) iterate(ctx context.Context) {
	now := l.now()

	// Serial ingestion, rate-limited. The drain is exhaustive per call, so
	// capping its frequency bounds read syscalls without dropping data.
	if l.link.Connected() && now.Sub(l.lastRead) >= l.cfg.SerialReadInterval() {
		l.lastRead = now
		l.drainSerial()
	}

	// Telemetry push tick.
	if now.Sub(l.lastPush) >= l.cfg.PushInterval() {
		l.lastPush = now
		sample := l.computeSample(now)

		if err := l.audit.Append(sample); err != nil {
			logrus.Errorf("audit append failed: %v", err)
		}
		if err := l.remote.Push(sample); err != nil {
			logrus.Errorf("%v", err)
		}

		logrus.WithFields(logrus.Fields{
			"pv":       fmt.Sprintf("%.1f", sample.UpperPercent),
			"co":       fmt.Sprintf("%.1f", sample.PumpPercent),
			"setpoint": fmt.Sprintf("%.1f", sample.Setpoint),
		}).Debug("push tick")
	}

	// Setpoint pull tick.
	if now.Sub(l.lastPull) >= l.cfg.PullInterval() {
		l.lastPull = now
		if v, changed, err := l.remote.Pull(l.Setpoint()); err != nil {
			logrus.Errorf("%v", err)
		} else if changed {
			l.applySetpoint(v, "remote")
		}
	}

	// A changed setpoint (remote or local override) goes to the device as
	// soon as a connection exists; a failed write drops the connection and
	// leaves the change pending for the post-reconnect init frame.
	if l.link.Connected() && l.takeWritePending() {
		if err := l.link.WriteSetpoint(l.Setpoint()); err != nil {
			logrus.Errorf("setpoint write failed: %v", err)
			l.events.Record(events.TypeDisconnected, "setpoint write failed")
			l.setWritePending()
		}
	}

	// Heal a lost connection before the next pass reads.
	if !l.link.Connected() {
		l.connect(ctx)
	}
}

// connect blocks until the device is reachable or ctx is canceled. The rest
// of the system is intentionally idle while this runs.
func (l *Loop) connect(ctx context.Context) {
	if err := l.link.Connect(ctx, l.Setpoint()); err != nil {
		// Only cancellation gets here; the link retries I/O failures forever.
		return
	}
	// The init frame already carried the current setpoint.
	l.clearWritePending()
	l.events.Record(events.TypeConnected, l.cfg.SerialPort())
}

func (l *Loop) drainSerial() {
	lines, err := l.link.ReadAvailable()
	if err != nil {
		logrus.Errorf("serial read failed: %v", err)
		l.events.Record(events.TypeDisconnected, "read failure")
		return
	}

	for _, line := range lines {
		raw, kind := l.decoder.Decode(line)
		switch kind {
		case telemetry.Handshake:
			logrus.Info("device ready")
		case telemetry.Reading:
			l.mu.Lock()
			l.raw = raw
			l.mu.Unlock()
		}
	}
}

// computeSample converts the retained raw reading under the setpoint in
// effect right now. The sample is kept for the local API.
func (l *Loop) computeSample(now time.Time) telemetry.Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	sample := telemetry.Sample{
		Timestamp:    now,
		UpperPercent: l.conv.SensorToPercent(l.raw.UpperDistance),
		LowerPercent: l.conv.SensorToPercent(l.raw.LowerDistance),
		PumpPercent:  l.conv.PumpToPercent(l.raw.PumpRaw),
		Setpoint:     l.setpoint,
	}
	l.lastSample = sample
	l.hasSample = true
	return sample
}

// Setpoint returns the currently held setpoint.
func (l *Loop) Setpoint() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.setpoint
}

// SetSetpoint applies a local override, exactly as a remote change would:
// the held value updates and one device write is scheduled.
func (l *Loop) SetSetpoint(v float64) {
	l.applySetpoint(v, "local")
}

func (l *Loop) applySetpoint(v float64, source string) {
	l.mu.Lock()
	old := l.setpoint
	l.setpoint = v
	l.writePending = true
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"old":    old,
		"new":    v,
		"source": source,
	}).Info("setpoint changed")
	l.events.Record(events.TypeSetpointChange, fmt.Sprintf("%.1f -> %.1f (%s)", old, v, source))
}

// Snapshot returns the loop state for the local API.
func (l *Loop) Snapshot() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Status{
		ConnectionState: l.link.State().String(),
		Setpoint:        l.setpoint,
		LastReading:     l.raw,
	}
	if l.hasSample {
		sample := l.lastSample
		s.LastSample = &sample
	}
	return s
}

func (l *Loop) setWritePending() {
	l.mu.Lock()
	l.writePending = true
	l.mu.Unlock()
}

func (l *Loop) clearWritePending() {
	l.mu.Lock()
	l.writePending = false
	l.mu.Unlock()
}

func (l *Loop) takeWritePending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.writePending {
		return false
	}
	l.writePending = false
	return true
}
