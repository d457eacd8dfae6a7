package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ScanGeometry is the angular layout of a planar scan derived from camera
// intrinsics: the span of bearings the image columns cover and the uniform
// step between adjacent buckets. Bucket i holds bearing
// AngleMin + i*AngleIncrement.
type ScanGeometry struct {
	AngleMin       float64 // radians, bearing of bucket 0
	AngleMax       float64 // radians, bearing of the last bucket
	AngleIncrement float64 // radians between adjacent buckets
	Count          int     // number of buckets, one per pixel column
}

// NewScanGeometry derives the scan layout from camera intrinsics. The span
// is symmetric about the optical axis, reaching out to the edge ray farther
// from it, so every pixel column's bearing falls inside the span even when
// the principal point is off center.
func NewScanGeometry(params *PinholeCameraIntrinsics) (*ScanGeometry, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if params.Width < 2 {
		return nil, errors.Errorf("need at least 2 pixel columns to derive a scan, have %d", params.Width)
	}

	left := AngleBetweenRays(params.PixelRay(0), centerRay)
	right := AngleBetweenRays(params.PixelRay(float64(params.Width-1)), centerRay)
	angleMax := math.Max(left, right)
	if angleMax <= 0 || math.IsNaN(angleMax) {
		return nil, errors.Errorf("camera has a degenerate horizontal field of view (Ppx %v, Fx %v)",
			params.Ppx, params.Fx)
	}
	angleMin := -angleMax

	return &ScanGeometry{
		AngleMin:       angleMin,
		AngleMax:       angleMax,
		AngleIncrement: (angleMax - angleMin) / float64(params.Width-1),
		Count:          params.Width,
	}, nil
}

// Index returns the bucket a bearing falls into. The conversion truncates
// toward zero, so a bearing a rounding error below AngleMin still lands in
// bucket 0. Bearings farther outside the span give out-of-bounds results;
// see InBounds.
func (g *ScanGeometry) Index(th float64) int {
	return int((th - g.AngleMin) / g.AngleIncrement)
}

// InBounds reports whether a bucket index addresses the scan.
func (g *ScanGeometry) InBounds(i int) bool {
	return i >= 0 && i < g.Count
}

var centerRay = r3.Vector{X: 0, Y: 0, Z: 1}

// AngleBetweenRays returns the angle in radians between two rays from the
// camera origin. The result is NaN if either ray has zero magnitude.
func AngleBetweenRays(ray1, ray2 r3.Vector) float64 {
	dot := ray1.Dot(ray2)
	return math.Acos(dot / (ray1.Norm() * ray2.Norm()))
}
