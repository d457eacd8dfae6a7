package depthscan

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/depthscan/depthimage"
	"go.viam.com/depthscan/transform"
)

// Converter turns depth frames into planar scans. It is safe for concurrent
// use: each conversion reads a config snapshot at entry, so setter calls
// during an in-flight conversion apply to the next frame.
type Converter struct {
	mu  sync.RWMutex
	cfg Config
}

// NewConverter returns a converter using the given parameters.
func NewConverter(cfg Config) (*Converter, error) {
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return &Converter{cfg: cfg}, nil
}

// Config returns a snapshot of the current parameters.
func (c *Converter) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetScanTime updates the scan period copied into output metadata.
func (c *Converter) SetScanTime(scanTime float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ScanTime = scanTime
}

// SetRangeLimits updates the reported range bounds in meters.
func (c *Converter) SetRangeLimits(rangeMin, rangeMax float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.RangeMin = rangeMin
	c.cfg.RangeMax = rangeMax
}

// SetScanHeight updates how many pixel rows contribute to each scan.
func (c *Converter) SetScanHeight(scanHeight int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ScanHeight = scanHeight
}

// SetOutputFrame updates the frame label attached to scans.
func (c *Converter) SetOutputFrame(frameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.OutputFrame = frameID
}

// Convert projects one depth frame through the camera model into a scan.
func (c *Converter) Convert(frame *depthimage.DepthFrame, params *transform.PinholeCameraIntrinsics) (*Scan, error) {
	return ConvertWith(frame, params, c.Config())
}

// ConvertWith projects one depth frame into a scan using an explicit
// parameter snapshot. The frame, intrinsics, and config must agree: the
// frame's dimensions must match the intrinsics and the vertical window of
// cfg.ScanHeight rows centered on the principal point must lie inside the
// frame. Disagreement is reported as an error, never as an out-of-bounds
// access.
func ConvertWith(
	frame *depthimage.DepthFrame,
	params *transform.PinholeCameraIntrinsics,
	cfg Config,
) (*Scan, error) {
	if err := frame.CheckValid(); err != nil {
		return nil, err
	}
	geom, err := transform.NewScanGeometry(params)
	if err != nil {
		return nil, err
	}
	if params.Width != frame.Width || params.Height != frame.Height {
		return nil, errors.Errorf("depth frame size %dx%d does not match intrinsics %dx%d",
			frame.Width, frame.Height, params.Width, params.Height)
	}
	if cfg.ScanHeight < 1 {
		return nil, errors.Errorf("scan height must be at least 1, got %d", cfg.ScanHeight)
	}

	offset := int(math.Round(params.Ppy - float64(cfg.ScanHeight)/2.0))
	if offset < 0 || offset+cfg.ScanHeight > frame.Height {
		return nil, errors.Errorf("scan height %d centered on row %v needs rows [%d,%d), frame has %d rows",
			cfg.ScanHeight, params.Ppy, offset, offset+cfg.ScanHeight, frame.Height)
	}

	unitScaling := frame.Encoding.UnitScaling()
	constantX := unitScaling / params.Fx

	bearing := func(u int) float64 {
		return -math.Atan2((float64(u)-params.Ppx)*constantX, unitScaling)
	}

	// bearing falls monotonically with u, so if both edge columns map to
	// valid buckets every interior column does too
	if i := geom.Index(bearing(0)); !geom.InBounds(i) {
		return nil, errors.Errorf("column 0 maps to bucket %d of %d, intrinsics and scan layout disagree",
			i, geom.Count)
	}
	if i := geom.Index(bearing(frame.Width - 1)); !geom.InBounds(i) {
		return nil, errors.Errorf("column %d maps to bucket %d of %d, intrinsics and scan layout disagree",
			frame.Width-1, i, geom.Count)
	}

	scan := NewScan(geom, cfg)

	for v := offset; v < offset+cfg.ScanHeight; v++ {
		for u := 0; u < frame.Width; u++ {
			raw := frame.At(u, v)
			// invalid samples pass through so the selection policy sees them
			r := raw

			th := bearing(u)
			index := geom.Index(th)

			if frame.Encoding.Valid(raw) {
				// true euclidean range from the optical center, not the forward depth
				x := (float64(u) - params.Ppx) * raw * constantX
				z := raw * unitScaling
				r = math.Hypot(x, z)
			}

			if usePoint(r, scan.Ranges[index], cfg.RangeMin, cfg.RangeMax) {
				scan.Ranges[index] = r
			}
		}
	}

	return scan, nil
}

// usePoint decides whether a candidate range replaces a bucket's current
// value. The closest valid range wins. A candidate past rangeMax may fill a
// bucket with no prior valid value, marking "nothing within range" for that
// bearing; a candidate below rangeMin never replaces anything.
func usePoint(newValue, oldValue, rangeMin, rangeMax float64) bool {
	if math.IsNaN(newValue) || newValue < 0 {
		return false
	}
	if math.IsNaN(oldValue) || math.IsInf(oldValue, 0) {
		return newValue > rangeMax || newValue >= rangeMin
	}
	return newValue >= rangeMin && newValue < oldValue
}
