// Package telemetry decodes the line protocol spoken by the tank controller.
//
// The device emits ASCII lines of the form "<upper>,<lower>,<pump>" where the
// distances are decimal floats and the pump value is an integer. On reset it
// emits a handshake line containing a sentinel token instead. Anything else
// is electrical noise and is dropped without comment.
package telemetry

import (
	"strconv"
	"strings"
)

// Kind classifies the outcome of decoding one line.
type Kind int

const (
	// None means the line carried no usable telemetry.
	None Kind = iota
	// Handshake means the device announced it is ready; no reading.
	Handshake
	// Reading means a full Raw reading was decoded.
	Reading
)

// Decoder parses device output lines. It holds no state beyond the handshake
// token it matches against.
type Decoder struct {
	handshakeToken string
}

// NewDecoder returns a Decoder recognizing the given handshake token.
func NewDecoder(handshakeToken string) *Decoder {
	return &Decoder{handshakeToken: handshakeToken}
}

// Decode parses a single line, already stripped of line endings. Handshake
// detection is substring containment, not exact match: the firmware pads the
// token with human-readable text.
func (d *Decoder) Decode(line string) (Raw, Kind) {
	if d.handshakeToken != "" && strings.Contains(line, d.handshakeToken) {
		return Raw{}, Handshake
	}

	if !strings.Contains(line, ",") {
		return Raw{}, None
	}

	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Raw{}, None
	}

	upper, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Raw{}, None
	}
	lower, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Raw{}, None
	}
	pump, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Raw{}, None
	}

	return Raw{
		UpperDistance: upper,
		LowerDistance: lower,
		PumpRaw:       pump,
	}, Reading
}
