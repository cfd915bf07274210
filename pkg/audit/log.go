// Package audit keeps the local CSV trail of what was pushed to the control
// plane: one row per push tick with the process value, control output, and
// setpoint in effect. The trail is best-effort and must never stall the
// control loop.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"tankbridge/pkg/telemetry"
)

const timestampLayout = "2006-01-02 15:04:05"

var header = []string{"timestamp", "PV", "CO", "setpoint"}

// Log appends samples to a CSV file. The file is opened and closed per
// append so no handle is held between push ticks and rotation can rename
// the file at any point.
type Log struct {
	path string
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the active file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one record, creating the file with a header row first if it
// does not exist yet. The header is written exactly once per file lifetime.
func (l *Log) Append(sample telemetry.Sample) error {
	_, statErr := os.Stat(l.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open audit file %s", l.path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return pkgerrors.Wrap(err, "failed to write audit header")
		}
	}

	row := []string{
		sample.Timestamp.Format(timestampLayout),
		fmt.Sprintf("%.1f", sample.UpperPercent),
		fmt.Sprintf("%.1f", sample.PumpPercent),
		fmt.Sprintf("%.1f", sample.Setpoint),
	}
	if err := w.Write(row); err != nil {
		return pkgerrors.Wrap(err, "failed to write audit row")
	}

	w.Flush()
	return pkgerrors.Wrap(w.Error(), "failed to flush audit file")
}

// Rotate renames the active file to a dated sibling so the next Append
// starts a fresh file with its own header. Rotating a nonexistent file is a
// no-op.
func (l *Log) Rotate(now time.Time) error {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return nil
	}

	rotated := rotatedName(l.path, now)
	if err := os.Rename(l.path, rotated); err != nil {
		return pkgerrors.Wrapf(err, "failed to rotate audit file to %s", rotated)
	}
	return nil
}

func rotatedName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s-%s%s", base, now.Format("20060102-150405"), ext)
}
