package serial

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePort is an in-memory Port. Reads drain pending; writes are recorded.
type fakePort struct {
	pending  []byte
	written  []byte
	readErr  error
	writeErr error
	closed   bool
	resets   int
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.pending) == 0 {
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error             { p.closed = true; return nil }
func (p *fakePort) ResetInputBuffer() error  { p.resets++; return nil }
func (p *fakePort) ResetOutputBuffer() error { return nil }

// newTestLink returns a Link wired to the given port with sleeps recorded
// instead of slept.
func newTestLink(port *fakePort, sleeps *int) *Link {
	l := New(Config{
		PortName:       "/dev/ttyTEST",
		BaudRate:       9600,
		ReconnectDelay: 5 * time.Second,
		SettleDelay:    2 * time.Second,
	})
	l.open = func() (Port, error) { return port, nil }
	l.sleep = func(_ context.Context, _ time.Duration) error {
		if sleeps != nil {
			*sleeps++
		}
		return nil
	}
	return l
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	const failures = 3
	port := &fakePort{}
	attempts := 0
	retrySleeps := 0

	l := New(Config{ReconnectDelay: 5 * time.Second, SettleDelay: 2 * time.Second})
	l.open = func() (Port, error) {
		attempts++
		if attempts <= failures {
			return nil, errors.New("no such device")
		}
		return port, nil
	}
	l.sleep = func(_ context.Context, d time.Duration) error {
		if d == 5*time.Second {
			retrySleeps++
		}
		return nil
	}

	if err := l.Connect(context.Background(), 85.0); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if attempts != failures+1 {
		t.Errorf("open attempts = %d, want %d", attempts, failures+1)
	}
	if retrySleeps != failures {
		t.Errorf("retry delays = %d, want %d", retrySleeps, failures)
	}
	if !l.Connected() {
		t.Error("link should be connected")
	}
	if got := string(port.written); got != "SP:85.0\n" {
		t.Errorf("init frame = %q, want %q", got, "SP:85.0\n")
	}
}

func TestConnectHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(Config{ReconnectDelay: time.Second})
	l.open = func() (Port, error) { return nil, errors.New("no such device") }
	l.sleep = sleepCtx

	if err := l.Connect(ctx, 85.0); err == nil {
		t.Fatal("Connect should return ctx error after cancellation")
	}
	if l.Connected() {
		t.Error("link should not be connected")
	}
}

func TestWriteSetpointFrames(t *testing.T) {
	tests := []struct {
		setpoint float64
		want     string
	}{
		{90, "SP:90.0\n"},
		{87.5, "SP:87.5\n"},
		{0, "SP:0.0\n"},
		{33.33, "SP:33.33\n"},
	}
	for _, tt := range tests {
		if got := FormatSetpointFrame(tt.setpoint); got != tt.want {
			t.Errorf("FormatSetpointFrame(%v) = %q, want %q", tt.setpoint, got, tt.want)
		}
	}
}

func TestWriteSetpointFlushesThenWrites(t *testing.T) {
	port := &fakePort{}
	l := newTestLink(port, nil)
	if err := l.Connect(context.Background(), 85.0); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	port.written = nil

	if err := l.WriteSetpoint(90.0); err != nil {
		t.Fatalf("WriteSetpoint returned error: %v", err)
	}
	if got := string(port.written); got != "SP:90.0\n" {
		t.Errorf("frame = %q, want %q", got, "SP:90.0\n")
	}
	if port.resets < 2 {
		t.Errorf("input buffer resets = %d, want at least 2 (connect + write)", port.resets)
	}
}

func TestWriteErrorDropsConnection(t *testing.T) {
	port := &fakePort{}
	l := newTestLink(port, nil)
	if err := l.Connect(context.Background(), 85.0); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	port.writeErr = errors.New("input/output error")
	err := l.WriteSetpoint(90.0)
	if !errors.Is(err, ErrConnLost) {
		t.Fatalf("WriteSetpoint error = %v, want ErrConnLost", err)
	}
	if l.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", l.State())
	}
	if !port.closed {
		t.Error("port handle should be released on failure")
	}
}

func TestReadAvailableDrainsBufferedLines(t *testing.T) {
	port := &fakePort{}
	l := newTestLink(port, nil)
	if err := l.Connect(context.Background(), 85.0); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	port.pending = []byte("5.2,3.1,20\r\n6.0,9.0,30\nINTERLOCK\n7.1,2")
	lines, err := l.ReadAvailable()
	if err != nil {
		t.Fatalf("ReadAvailable returned error: %v", err)
	}
	want := []string{"5.2,3.1,20", "6.0,9.0,30", "INTERLOCK"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	// Incomplete tail completes on the next drain.
	port.pending = []byte(".0,1,5\n")
	lines, err = l.ReadAvailable()
	if err != nil {
		t.Fatalf("ReadAvailable returned error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "7.1,2.0,1,5" {
		t.Errorf("lines = %v, want [7.1,2.0,1,5]", lines)
	}
}

func TestReadErrorDropsConnection(t *testing.T) {
	port := &fakePort{}
	l := newTestLink(port, nil)
	if err := l.Connect(context.Background(), 85.0); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	port.readErr = errors.New("device unplugged")
	if _, err := l.ReadAvailable(); !errors.Is(err, ErrConnLost) {
		t.Fatalf("ReadAvailable error = %v, want ErrConnLost", err)
	}
	if l.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", l.State())
	}
}

// State and Connected are read from status-API goroutines while the owning
// goroutine churns through connects and write failures; this is the scenario
// the race detector watches.
func TestStateObservableAcrossGoroutines(t *testing.T) {
	port := &fakePort{}
	l := newTestLink(port, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = l.State()
			_ = l.Connected()
		}
	}()

	for i := 0; i < 100; i++ {
		if err := l.Connect(context.Background(), 85.0); err != nil {
			t.Errorf("Connect returned error: %v", err)
			break
		}
		port.writeErr = errors.New("device unplugged")
		if err := l.WriteSetpoint(50.0); !errors.Is(err, ErrConnLost) {
			t.Errorf("WriteSetpoint error = %v, want ErrConnLost", err)
			break
		}
		port.writeErr = nil
		port.closed = false
	}
	<-done

	if l.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", l.State())
	}
}
