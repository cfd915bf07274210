// Package remote talks to the control plane: it pushes telemetry samples and
// pulls the desired setpoint. Both calls are bounded by the client timeout
// and neither failure mode is ever fatal.
package remote

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tankbridge/pkg/telemetry"
)

// Sync performs the HTTP interactions with the control plane.
type Sync struct {
	pushURL    string
	pullURL    string
	httpClient *http.Client
}

// New returns a Sync targeting the given endpoints. All requests are bounded
// by timeout so a slow remote cannot stall the control loop beyond it.
func New(pushURL, pullURL string, timeout time.Duration) *Sync {
	return &Sync{
		pushURL: pushURL,
		pullURL: pullURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Push sends one telemetry sample as a form-encoded POST. Telemetry is a
// continuously refreshed stream, so a failed push is dropped: the next tick
// supersedes it. The caller only logs the returned error.
func (s *Sync) Push(sample telemetry.Sample) error {
	form := url.Values{
		"upper_percent": {formatPercent(sample.UpperPercent)},
		"pump_percent":  {formatPercent(sample.PumpPercent)},
		"lower_percent": {formatPercent(sample.LowerPercent)},
	}

	resp, err := s.httpClient.Post(s.pushURL, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrap(err, "telemetry push failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Warnf("failed to close push response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pkgerrors.Errorf("telemetry push got status %d", resp.StatusCode)
	}

	logrus.WithField("status", resp.StatusCode).Debug("telemetry pushed")
	return nil
}

// pullResponse is the control-plane reply. A missing setpoint field means no
// change is requested.
type pullResponse struct {
	Setpoint *float64 `json:"setpoint"`
}

// Pull fetches the remote setpoint. It returns the new value and true when
// the remote holds a well-formed setpoint differing from current. Network,
// status, and parse failures all read as "no change".
func (s *Sync) Pull(current float64) (float64, bool, error) {
	resp, err := s.httpClient.Get(s.pullURL)
	if err != nil {
		return current, false, pkgerrors.Wrap(err, "setpoint pull failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Warnf("failed to close pull response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return current, false, pkgerrors.Errorf("setpoint pull got status %d", resp.StatusCode)
	}

	var body pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return current, false, pkgerrors.Wrap(err, "malformed setpoint pull response")
	}

	if body.Setpoint == nil || *body.Setpoint == current {
		return current, false, nil
	}
	return *body.Setpoint, true, nil
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
