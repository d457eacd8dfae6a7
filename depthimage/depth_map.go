// Package depthimage defines single-channel depth images and the encodings
// that map their raw samples to metric depth.
package depthimage

import (
	"image"
	"math"
)

// Depth is the depth of a pixel in millimeters.
type Depth uint16

// MaxDepth is the largest possible Depth value.
const MaxDepth = Depth(math.MaxUint16)

// Meters converts a depth sample to meters.
func (d Depth) Meters() float64 {
	return float64(d) * 0.001
}

// DepthMap represents a depth map as a dense millimeter grid. A zero Depth
// marks a pixel with no reading.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns an unset depth map of the given dimensions.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// Width returns the width of the depth map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the depth map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle of points in the depth map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// Contains reports whether (x,y) is inside the depth map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// GetDepth returns the depth at (x,y).
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Get returns the depth at the given point.
func (dm *DepthMap) Get(p image.Point) Depth {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// Set writes the depth at (x,y).
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// Clone makes a copy of the depth map.
func (dm *DepthMap) Clone() *DepthMap {
	ddm := NewEmptyDepthMap(dm.Width(), dm.Height())
	copy(ddm.data, dm.data)
	return ddm
}

// MinMax returns the smallest nonzero depth and the largest depth in the map.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	min := MaxDepth
	max := Depth(0)

	for x := 0; x < dm.width; x++ {
		for y := 0; y < dm.height; y++ {
			z := dm.GetDepth(x, y)
			if z == 0 {
				continue
			}
			if z < min {
				min = z
			}
			if z > max {
				max = z
			}
		}
	}

	return min, max
}
