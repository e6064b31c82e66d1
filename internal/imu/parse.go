// Package imu adapts raw IMU output into orientation samples. It bridges the
// serial line multiplexer (or a simulated feed) to the detector's
// SampleSource interface so the classification state machine is identical
// regardless of where readings come from.
package imu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AMEND09/Razr/internal/orientation"
)

// Reading is one parsed IMU output line. Either channel may be absent when
// the device has that report disabled; absent channels yield invalid samples
// which the detector drops.
type Reading struct {
	UptimeMillis int64
	AccelZ       orientation.Sample // gravity-axis acceleration, m/s²
	Tilt         orientation.Sample // tilt angle, degrees
}

// ParseReading parses a CSV reading line of the form
// "<uptime_ms>,<accel_z>,<tilt_deg>". Empty value fields are treated as
// absent, not as errors; a malformed line returns an error.
func ParseReading(line string) (Reading, error) {
	segments := strings.Split(strings.TrimSpace(line), ",")
	if len(segments) != 3 {
		return Reading{}, fmt.Errorf("expected 3 fields, got %d in %q", len(segments), line)
	}

	uptime, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to parse uptime: %w", err)
	}

	r := Reading{UptimeMillis: uptime}

	if s := strings.TrimSpace(segments[1]); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse accel_z: %w", err)
		}
		r.AccelZ = orientation.Sample{Value: v, Valid: true}
	}

	if s := strings.TrimSpace(segments[2]); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse tilt_deg: %w", err)
		}
		r.Tilt = orientation.Sample{Value: v, Valid: true}
	}

	return r, nil
}

// sampleFor selects the channel matching the detector's configured kind.
func (r Reading) sampleFor(kind orientation.SampleKind) orientation.Sample {
	if kind == orientation.TiltDegrees {
		return r.Tilt
	}
	return r.AccelZ
}
