package depthimage

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// DepthFrame is a depth image in wire form: a packed little-endian byte
// buffer plus the layout needed to address it. It is the shape depth arrives
// in on a ROS image topic and the input the scan converter reads.
type DepthFrame struct {
	Width    int
	Height   int
	Step     int // bytes from the start of one row to the start of the next
	Encoding Encoding
	Data     []byte
}

// NewDepthFrame returns a zeroed, tightly packed frame of the given
// dimensions.
func NewDepthFrame(width, height int, enc Encoding) (*DepthFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid depth frame dimensions %dx%d", width, height)
	}
	bpp := enc.BytesPerPixel()
	if bpp == 0 {
		return nil, errors.Errorf("cannot allocate a depth frame with encoding %q", enc)
	}
	return &DepthFrame{
		Width:    width,
		Height:   height,
		Step:     width * bpp,
		Encoding: enc,
		Data:     make([]byte, width*height*bpp),
	}, nil
}

// NewDepthFrameFromDepthMap packs a millimeter depth map into a 16UC1 frame.
func NewDepthFrameFromDepthMap(dm *DepthMap) *DepthFrame {
	df := &DepthFrame{
		Width:    dm.Width(),
		Height:   dm.Height(),
		Step:     2 * dm.Width(),
		Encoding: Encoding16UC1,
		Data:     make([]byte, 2*dm.Width()*dm.Height()),
	}
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			df.SetAt(x, y, float64(dm.GetDepth(x, y)))
		}
	}
	return df
}

// CheckValid returns an error unless the frame's layout is internally
// consistent: a known encoding, a step wide enough for a row of samples, and
// a buffer long enough for every addressable pixel.
func (df *DepthFrame) CheckValid() error {
	if df == nil {
		return errors.New("depth frame is nil")
	}
	if df.Width <= 0 || df.Height <= 0 {
		return errors.Errorf("invalid depth frame dimensions %dx%d", df.Width, df.Height)
	}
	bpp := df.Encoding.BytesPerPixel()
	if bpp == 0 {
		return errors.Errorf("unsupported depth encoding %q", df.Encoding)
	}
	if df.Step < df.Width*bpp {
		return errors.Errorf("depth frame step %d too small for %d samples of %d bytes",
			df.Step, df.Width, bpp)
	}
	if need := (df.Height-1)*df.Step + df.Width*bpp; len(df.Data) < need {
		return errors.Errorf("depth frame buffer has %d bytes, need at least %d", len(df.Data), need)
	}
	return nil
}

// At returns the raw sample at (x,y) in the encoding's native units. The
// caller is responsible for bounds; use CheckValid before iterating.
func (df *DepthFrame) At(x, y int) float64 {
	switch df.Encoding {
	case Encoding16UC1:
		i := y*df.Step + 2*x
		return float64(binary.LittleEndian.Uint16(df.Data[i:]))
	case Encoding32FC1:
		i := y*df.Step + 4*x
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(df.Data[i:])))
	default:
		return math.NaN()
	}
}

// SetAt writes a raw sample at (x,y), truncating to the encoding's sample
// type.
func (df *DepthFrame) SetAt(x, y int, raw float64) {
	switch df.Encoding {
	case Encoding16UC1:
		i := y*df.Step + 2*x
		binary.LittleEndian.PutUint16(df.Data[i:], uint16(raw))
	case Encoding32FC1:
		i := y*df.Step + 4*x
		binary.LittleEndian.PutUint32(df.Data[i:], math.Float32bits(float32(raw)))
	}
}

// MetersAt returns the depth at (x,y) in meters and whether the pixel holds
// a real reading.
func (df *DepthFrame) MetersAt(x, y int) (float64, bool) {
	raw := df.At(x, y)
	if !df.Encoding.Valid(raw) {
		return 0, false
	}
	return raw * df.Encoding.UnitScaling(), true
}

// ToDepthMap converts the frame to a millimeter depth map, mapping missing
// readings to zero.
func (df *DepthFrame) ToDepthMap() (*DepthMap, error) {
	if err := df.CheckValid(); err != nil {
		return nil, err
	}
	dm := NewEmptyDepthMap(df.Width, df.Height)
	for y := 0; y < df.Height; y++ {
		for x := 0; x < df.Width; x++ {
			m, ok := df.MetersAt(x, y)
			if !ok || m < 0 {
				continue
			}
			mm := math.Round(m * 1000)
			if mm > float64(MaxDepth) {
				mm = float64(MaxDepth)
			}
			dm.Set(x, y, Depth(mm))
		}
	}
	return dm, nil
}
