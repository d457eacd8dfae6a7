// depthscan converts recorded depth images into planar range scans and
// writes them out as PCD point clouds.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depthscan"
	"go.viam.com/depthscan/depthimage"
	"go.viam.com/depthscan/ros"
	"go.viam.com/depthscan/transform"
)

var logger = golog.NewDevelopmentLogger("depthscan")

func main() {
	if err := realMain(os.Args[1:]); err != nil {
		logger.Fatal(err)
	}
}

func realMain(args []string) error {
	defaults := depthscan.DefaultConfig()

	flags := flag.NewFlagSet("depthscan", flag.ContinueOnError)
	topic := flags.String("topic", "/camera/depth/image_rect_raw", "depth image topic to extract from a bag")
	intrinsicsFile := flags.String("intrinsics", "", "pinhole intrinsics JSON file (required)")
	outDir := flags.String("out", ".", "directory scan PCDs are written to")
	scanHeight := flags.Int("scan-height", defaults.ScanHeight, "pixel rows used per scan")
	rangeMin := flags.Float64("range-min", defaults.RangeMin, "closest reported range in meters")
	rangeMax := flags.Float64("range-max", defaults.RangeMax, "farthest reported range in meters")
	frameID := flags.String("frame-id", defaults.OutputFrame, "frame id stamped on scans")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("need a rosbag or depth map file to replay")
	}
	if *intrinsicsFile == "" {
		return errors.New("missing required -intrinsics file")
	}

	params, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(*intrinsicsFile)
	if err != nil {
		return err
	}

	cfg := defaults
	cfg.ScanHeight = *scanHeight
	cfg.RangeMin = *rangeMin
	cfg.RangeMax = *rangeMax
	cfg.OutputFrame = *frameID
	conv, err := depthscan.NewConverter(cfg)
	if err != nil {
		return err
	}

	frames, err := loadFrames(flags.Arg(0), *topic)
	if err != nil {
		return err
	}
	logger.Infof("replaying %d depth frames", len(frames))

	for i, tf := range frames {
		scan, err := conv.Convert(tf.Frame, params)
		if err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		scan.CapturedAt = tf.CapturedAt

		name := filepath.Join(*outDir, fmt.Sprintf("scan_%d.pcd", i))
		if err := writeScanPCD(scan, name); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}

		stats := scan.Stats()
		fields := []interface{}{
			"index", i,
			"returns", stats.Returns,
			"min_m", stats.Min,
			"max_m", stats.Max,
			"mean_m", stats.Mean,
			"pcd", name,
		}
		if !scan.CapturedAt.IsZero() {
			fields = append(fields, "captured_at", scan.CapturedAt.Format(time.RFC3339Nano))
		}
		logger.Infow("scan", fields...)
	}

	logger.Infof("wrote %d scans to %s", len(frames), *outDir)
	return nil
}

// loadFrames reads timed depth frames from a rosbag topic, or treats the
// file as a single serialized depth map.
func loadFrames(filename, topic string) ([]ros.TimedFrame, error) {
	if strings.HasSuffix(filename, ".bag") {
		rb, err := ros.ReadBag(filename)
		if err != nil {
			return nil, err
		}
		return ros.ExtractDepthFrames(rb, topic)
	}

	dm, err := depthimage.ParseDepthMap(filename)
	if err != nil {
		return nil, err
	}
	return []ros.TimedFrame{{Frame: depthimage.NewDepthFrameFromDepthMap(dm)}}, nil
}

func writeScanPCD(scan *depthscan.Scan, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return scan.WritePCD(f)
}
