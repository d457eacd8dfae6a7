// Package depthscan converts depth camera frames into planar range-bearing
// scans, letting 2D navigation consumers treat a depth camera as a lidar.
package depthscan

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// DefaultOutputFrame is the frame label attached to scans unless configured
// otherwise.
const DefaultOutputFrame = "camera_depth_frame"

// Config holds the tunable parameters of the conversion. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// ScanTime is the expected time between scans in seconds. It is copied
	// into the output metadata and plays no part in the geometry. Zero asks
	// the streaming layer to report the measured period instead.
	ScanTime float64 `json:"scan_time_s"`
	// RangeMin and RangeMax bound the reported ranges in meters. Candidates
	// below RangeMin are treated as sensor noise and excluded.
	RangeMin float64 `json:"range_min_m"`
	RangeMax float64 `json:"range_max_m"`
	// ScanHeight is how many pixel rows, centered vertically on the
	// principal point, contribute to the scan.
	ScanHeight int `json:"scan_height_px"`
	// OutputFrame labels the emitted scans.
	OutputFrame string `json:"output_frame_id"`
}

// DefaultConfig returns the conversion parameters used when nothing is
// configured.
func DefaultConfig() Config {
	return Config{
		ScanTime:    1.0 / 30.0,
		RangeMin:    0.45,
		RangeMax:    10.0,
		ScanHeight:  1,
		OutputFrame: DefaultOutputFrame,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.ScanTime < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("scan_time_s cannot be negative, got %v", c.ScanTime))
	}
	if c.RangeMin <= 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("range_min_m must be positive, got %v", c.RangeMin))
	}
	if c.RangeMax <= c.RangeMin {
		return utils.NewConfigValidationError(path,
			errors.Errorf("range_max_m (%v) must be greater than range_min_m (%v)", c.RangeMax, c.RangeMin))
	}
	if c.ScanHeight < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("scan_height_px must be at least 1, got %v", c.ScanHeight))
	}
	return nil
}
