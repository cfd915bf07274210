package client

import "errors"

var (
	// ErrDaemonNotRunning means nothing is listening on the daemon socket.
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied means the caller may not open the daemon socket.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound maps a 404 from the daemon, e.g. asking for telemetry
	// before the first push tick produced a sample.
	ErrNotFound = errors.New("404 not found")
)
