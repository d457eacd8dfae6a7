package depthscan

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/depthscan/transform"
)

// Scan is one planar range-bearing sweep. Ranges holds one distance in
// meters per angular bucket; bucket i covers bearing
// AngleMin + i*AngleIncrement. Buckets with no valid measurement stay at
// positive infinity.
type Scan struct {
	AngleMin       float64 // radians
	AngleMax       float64 // radians
	AngleIncrement float64 // radians
	TimeIncrement  float64 // seconds between buckets, zero for a camera
	ScanTime       float64 // seconds between scans
	RangeMin       float64 // meters
	RangeMax       float64 // meters
	Ranges         []float64
	FrameID        string
	// CapturedAt is when the source frame was taken. The streaming layer
	// stamps it; direct conversions leave it zero.
	CapturedAt time.Time
}

// NewScan allocates a scan laid out by geom, every bucket at the no-return
// sentinel, with metadata copied from the config.
func NewScan(geom *transform.ScanGeometry, cfg Config) *Scan {
	ranges := make([]float64, geom.Count)
	for i := range ranges {
		ranges[i] = math.Inf(1)
	}
	return &Scan{
		AngleMin:       geom.AngleMin,
		AngleMax:       geom.AngleMax,
		AngleIncrement: geom.AngleIncrement,
		TimeIncrement:  0,
		ScanTime:       cfg.ScanTime,
		RangeMin:       cfg.RangeMin,
		RangeMax:       cfg.RangeMax,
		Ranges:         ranges,
		FrameID:        cfg.OutputFrame,
	}
}

// BearingAt returns the bearing of bucket i in radians.
func (s *Scan) BearingAt(i int) float64 {
	return s.AngleMin + float64(i)*s.AngleIncrement
}

// HasReturn reports whether bucket i holds a real measurement inside the
// range limits. Buckets may also hold finite values beyond RangeMax meaning
// "nothing within range"; those are not returns.
func (s *Scan) HasReturn(i int) bool {
	r := s.Ranges[i]
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r >= s.RangeMin && r <= s.RangeMax
}

// Points projects the scan's returns onto the camera's horizontal plane in
// the camera frame, X right and Z forward.
func (s *Scan) Points() []r3.Vector {
	pts := make([]r3.Vector, 0, len(s.Ranges))
	for i, r := range s.Ranges {
		if !s.HasReturn(i) {
			continue
		}
		th := s.BearingAt(i)
		pts = append(pts, r3.Vector{X: -r * math.Sin(th), Y: 0, Z: r * math.Cos(th)})
	}
	return pts
}

// RangeStats summarizes the real returns of a scan.
type RangeStats struct {
	Returns int
	Min     float64 // meters
	Max     float64 // meters
	Mean    float64 // meters
}

// Stats computes summary statistics over the buckets holding real returns.
func (s *Scan) Stats() RangeStats {
	finite := make([]float64, 0, len(s.Ranges))
	for i := range s.Ranges {
		if s.HasReturn(i) {
			finite = append(finite, s.Ranges[i])
		}
	}
	if len(finite) == 0 {
		return RangeStats{}
	}
	return RangeStats{
		Returns: len(finite),
		Min:     floats.Min(finite),
		Max:     floats.Max(finite),
		Mean:    stat.Mean(finite, nil),
	}
}

// WritePCD writes the scan's returns as an ascii PCD point cloud.
func (s *Scan) WritePCD(out io.Writer) error {
	pts := s.Points()

	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n",
		len(pts),
		1,
		len(pts),
	)
	if err != nil {
		return err
	}

	for _, p := range pts {
		if _, err := fmt.Fprintf(out, "%f %f %f\n", p.X, p.Y, p.Z); err != nil {
			return err
		}
	}

	return nil
}
