package depthimage

import (
	"math"

	"github.com/pkg/errors"
)

// Encoding identifies how the raw pixel bytes of a DepthFrame convert to
// metric depth. The set is closed; a frame carrying anything else is a
// configuration error, not a decodable input.
type Encoding int

const (
	// EncodingUnknown is the zero Encoding and never decodes.
	EncodingUnknown Encoding = iota
	// Encoding16UC1 is 16-bit unsigned little-endian millimeters. A raw
	// value of zero marks a missing reading.
	Encoding16UC1
	// Encoding32FC1 is 32-bit IEEE-754 little-endian meters. NaN and the
	// infinities mark missing readings.
	Encoding32FC1
)

func (e Encoding) String() string {
	switch e {
	case Encoding16UC1:
		return "16UC1"
	case Encoding32FC1:
		return "32FC1"
	default:
		return "unknown"
	}
}

// EncodingFromString parses a ROS image encoding tag.
func EncodingFromString(s string) (Encoding, error) {
	switch s {
	case "16UC1", "mono16":
		return Encoding16UC1, nil
	case "32FC1":
		return Encoding32FC1, nil
	default:
		return EncodingUnknown, errors.Errorf("unsupported depth encoding %q", s)
	}
}

// BytesPerPixel returns the per-sample width of the encoding, or 0 for an
// unknown encoding.
func (e Encoding) BytesPerPixel() int {
	switch e {
	case Encoding16UC1:
		return 2
	case Encoding32FC1:
		return 4
	default:
		return 0
	}
}

// UnitScaling returns the metric value, in meters, of one raw depth unit.
func (e Encoding) UnitScaling() float64 {
	switch e {
	case Encoding16UC1:
		return .001
	case Encoding32FC1:
		return 1.0
	default:
		return 0
	}
}

// Valid reports whether a raw sample carries a real reading under the
// encoding's missing-data convention.
func (e Encoding) Valid(raw float64) bool {
	switch e {
	case Encoding16UC1:
		return raw != 0
	case Encoding32FC1:
		return !math.IsNaN(raw) && !math.IsInf(raw, 0)
	default:
		return false
	}
}
