package client

import (
	"encoding/json"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"tankbridge/pkg/bridge"
	"tankbridge/pkg/telemetry"
)

// GetStatus fetches the daemon's current status snapshot.
func (c *Client) GetStatus() (*bridge.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get status")
	}

	var st bridge.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal status")
	}
	return &st, nil
}

// GetTelemetry fetches the last pushed telemetry sample.
func (c *Client) GetTelemetry() (*telemetry.Sample, error) {
	ret, err := c.Get("/telemetry")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get telemetry")
	}

	var s telemetry.Sample
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal telemetry")
	}
	return &s, nil
}

// GetSetpoint fetches the setpoint the daemon currently holds.
func (c *Client) GetSetpoint() (float64, error) {
	ret, err := c.Get("/setpoint")
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get setpoint")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(ret), 64)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to parse setpoint response")
	}
	return v, nil
}

// SetSetpoint overrides the setpoint locally; the daemon relays it to the
// device the same way a remote change would be.
func (c *Client) SetSetpoint(v float64) (string, error) {
	return c.Put("/setpoint", strconv.FormatFloat(v, 'f', -1, 64))
}

// GetVersion fetches the daemon's version string.
func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to get version")
	}

	var v struct {
		Version   string `json:"version"`
		GitCommit string `json:"gitCommit"`
	}
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrap(err, "failed to unmarshal version")
	}
	return v.Version, nil
}
