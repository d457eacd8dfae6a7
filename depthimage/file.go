package depthimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// MagicNumIntVersionX is the first 8 bytes of a versioned depth file,
// "VERSIONX" read as a little-endian uint64.
const MagicNumIntVersionX = 6363110499870197078

func readNext(r io.Reader) (int64, error) {
	data := make([]byte, 8)
	x, err := io.ReadFull(r, data)
	if x == 8 {
		return int64(binary.LittleEndian.Uint64(data)), nil
	}
	return 0, errors.Wrapf(err, "got %d bytes", x)
}

// ParseDepthMap parses a depth map file, transparently decompressing .gz.
func ParseDepthMap(fn string) (dm *DepthMap, err error) {
	var f io.Reader

	//nolint:gosec
	osFile, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(osFile.Close)
	f = osFile

	if filepath.Ext(fn) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(gz.Close)
		f = gz
	}

	return ReadDepthMap(bufio.NewReader(f))
}

// ReadDepthMap reads a depth map in either the raw or the versioned format.
func ReadDepthMap(f *bufio.Reader) (*DepthMap, error) {
	rawWidth, err := readNext(f)
	if err != nil {
		return nil, err
	}

	if rawWidth == MagicNumIntVersionX {
		return readDepthMapFormat2(f)
	}

	rawHeight, err := readNext(f)
	if err != nil {
		return nil, err
	}

	width, height := int(rawWidth), int(rawHeight)
	if width <= 0 || width >= 100000 || height <= 0 || height >= 100000 {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}

	dm := NewEmptyDepthMap(width, height)

	// samples are stored column by column
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			temp, err := readNext(f)
			if err != nil {
				return nil, err
			}
			if temp > int64(MaxDepth) {
				temp = int64(MaxDepth)
			}
			dm.Set(x, y, Depth(temp))
		}
	}

	return dm, nil
}

func readDepthMapFormat2(r *bufio.Reader) (*DepthMap, error) {
	// the rest of the first line is garbage
	_, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	bytesPerPixelString, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	bytesPerPixelString = strings.TrimSpace(bytesPerPixelString)

	if bytesPerPixelString != "2" {
		return nil, errors.Errorf("i only know how to handle 2 bytes per pixel in new format, not %s", bytesPerPixelString)
	}

	unitsString, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	units, err := strconv.ParseFloat(strings.TrimSpace(unitsString), 64)
	if err != nil {
		return nil, err
	}
	units *= 1000 // m to mm

	widthString, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	rawWidth, err := strconv.ParseInt(strings.TrimSpace(widthString), 10, 64)
	if err != nil {
		return nil, err
	}

	heightString, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	rawHeight, err := strconv.ParseInt(strings.TrimSpace(heightString), 10, 64)
	if err != nil {
		return nil, err
	}

	width, height := int(rawWidth), int(rawHeight)
	if width <= 0 || width >= 100000 || height <= 0 || height >= 100000 {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}

	dm := NewEmptyDepthMap(width, height)
	temp := make([]byte, 2)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if _, err := io.ReadFull(r, temp); err != nil {
				return nil, errors.Wrapf(err, "couldn't read 2 bytes at x,y: %d,%d", x, y)
			}
			mm := units * float64(binary.LittleEndian.Uint16(temp))
			if mm > float64(MaxDepth) {
				mm = float64(MaxDepth)
			}
			dm.Set(x, y, Depth(mm))
		}
	}

	return dm, nil
}

// WriteToFile writes the depth map to the given file, gzipping if the name
// ends in .gz.
func (dm *DepthMap) WriteToFile(fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	var gout *gzip.Writer
	var out io.Writer = f

	if filepath.Ext(fn) == ".gz" {
		gout = gzip.NewWriter(f)
		out = gout
		defer func() {
			err = multierr.Combine(err, gout.Close())
		}()
	}

	if err := dm.WriteTo(out); err != nil {
		return err
	}

	if gout != nil {
		if err := gout.Flush(); err != nil {
			return err
		}
	}

	return f.Sync()
}

// WriteTo writes the depth map in the raw format.
func (dm *DepthMap) WriteTo(out io.Writer) error {
	buf := make([]byte, 8)

	binary.LittleEndian.PutUint64(buf, uint64(dm.width))
	if _, err := out.Write(buf); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(buf, uint64(dm.height))
	if _, err := out.Write(buf); err != nil {
		return err
	}

	for x := 0; x < dm.width; x++ {
		for y := 0; y < dm.height; y++ {
			binary.LittleEndian.PutUint64(buf, uint64(dm.GetDepth(x, y)))
			if _, err := out.Write(buf); err != nil {
				return err
			}
		}
	}

	return nil
}
