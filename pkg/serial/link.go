// Package serial owns the connection to the tank controller: opening the
// port, the retry-forever reconnect policy, setpoint writes, and draining
// buffered telemetry lines.
package serial

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// ErrConnLost is returned when an I/O failure drops the connection. The
// caller is responsible for reconnecting; the link never retries a write.
var ErrConnLost = pkgerrors.New("serial connection lost")

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Port is the subset of the device handle the link needs. go.bug.st/serial
// ports satisfy it; tests substitute an in-memory fake.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Config holds the link parameters.
type Config struct {
	// PortName is the device path, e.g. /dev/ttyUSB0.
	PortName string
	// BaudRate of the device.
	BaudRate int
	// ReadTimeout bounds a single read. Zero means non-blocking reads, which
	// is what the drain loop wants.
	ReadTimeout time.Duration
	// ReconnectDelay is the fixed wait between failed connect attempts.
	ReconnectDelay time.Duration
	// SettleDelay is how long to wait after opening the port before talking
	// to the device. The controller resets on port open and needs this long
	// to come back.
	SettleDelay time.Duration
}

// Link is the serial connection state machine. All mutating methods must be
// called from a single goroutine; State and Connected are safe to call from
// any goroutine, so status readers can observe the link live.
type Link struct {
	cfg   Config
	state atomic.Int32
	port  Port

	// partial holds the tail of the input stream after the last complete
	// line, carried over between drains.
	partial []byte

	// open and sleep are swappable for tests.
	open  func() (Port, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a disconnected Link.
func New(cfg Config) *Link {
	l := &Link{cfg: cfg}
	l.open = l.openReal
	l.sleep = sleepCtx
	return l
}

func (l *Link) openReal() (Port, error) {
	mode := &serial.Mode{BaudRate: l.cfg.BaudRate}
	port, err := serial.Open(l.cfg.PortName, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	return State(l.state.Load())
}

// Connected reports whether the device handle is open.
func (l *Link) Connected() bool {
	return l.State() == Connected
}

func (l *Link) setState(s State) {
	l.state.Store(int32(s))
}

// Connect opens the device, retrying forever with a fixed delay until it
// succeeds or ctx is canceled. On success it clears both buffers, waits for
// the device to settle after its reset, and sends the given setpoint as the
// initialization frame. This is the only blocking call in the system.
func (l *Link) Connect(ctx context.Context, setpoint float64) error {
	for {
		l.setState(Connecting)
		if err := ctx.Err(); err != nil {
			l.setState(Disconnected)
			return err
		}

		logrus.WithField("port", l.cfg.PortName).Info("connecting to device")
		port, err := l.open()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"port":  l.cfg.PortName,
				"retry": l.cfg.ReconnectDelay,
			}).Errorf("connect failed: %v", err)
			if err := l.sleep(ctx, l.cfg.ReconnectDelay); err != nil {
				l.setState(Disconnected)
				return err
			}
			continue
		}

		l.port = port
		l.partial = nil
		_ = port.ResetInputBuffer()
		_ = port.ResetOutputBuffer()

		logrus.Info("serial connected, waiting for device reset")
		if err := l.sleep(ctx, l.cfg.SettleDelay); err != nil {
			l.closePort()
			return err
		}

		l.setState(Connected)
		if err := l.WriteSetpoint(setpoint); err != nil {
			// Device dropped during init; go around again.
			continue
		}
		return nil
	}
}

// WriteSetpoint flushes both buffers and writes one setpoint command frame.
// Any I/O error drops the connection and returns ErrConnLost; reconnecting
// is the caller's job.
func (l *Link) WriteSetpoint(setpoint float64) error {
	if l.State() != Connected {
		return ErrConnLost
	}

	if err := l.port.ResetInputBuffer(); err != nil {
		l.dropConn(err)
		return ErrConnLost
	}
	if err := l.port.ResetOutputBuffer(); err != nil {
		l.dropConn(err)
		return ErrConnLost
	}

	frame := FormatSetpointFrame(setpoint)
	if _, err := l.port.Write([]byte(frame)); err != nil {
		l.dropConn(err)
		return ErrConnLost
	}

	logrus.WithField("setpoint", setpoint).Debug("setpoint sent to device")
	return nil
}

// ReadAvailable drains every complete line currently buffered on the port
// and returns them stripped of line endings. It never blocks: the port is
// opened with a zero read timeout, so a read with nothing pending returns
// immediately. An incomplete trailing line is kept for the next drain. Any
// I/O error drops the connection.
func (l *Link) ReadAvailable() ([]string, error) {
	if l.State() != Connected {
		return nil, ErrConnLost
	}

	buf := make([]byte, 512)
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			l.dropConn(err)
			return nil, ErrConnLost
		}
		if n == 0 {
			break
		}
		l.partial = append(l.partial, buf[:n]...)
	}

	var lines []string
	for {
		idx := bytes.IndexByte(l.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(l.partial[:idx]), "\r")
		l.partial = l.partial[idx+1:]
		lines = append(lines, line)
	}
	return lines, nil
}

// Close releases the device handle if one is open.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.setState(Disconnected)
	return err
}

func (l *Link) dropConn(err error) {
	logrus.Errorf("serial I/O error, dropping connection: %v", err)
	l.closePort()
}

// closePort releases the handle before the next Connecting attempt. Only one
// open handle may exist at a time.
func (l *Link) closePort() {
	if l.port != nil {
		if err := l.port.Close(); err != nil {
			logrus.Warnf("failed to close serial port: %v", err)
		}
		l.port = nil
	}
	l.partial = nil
	l.setState(Disconnected)
}

// FormatSetpointFrame renders the command frame the device expects. The
// setpoint always carries a decimal point: the firmware's parser treats
// "90" and "90.0" differently.
func FormatSetpointFrame(setpoint float64) string {
	s := strconv.FormatFloat(setpoint, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return "SP:" + s + "\n"
}
