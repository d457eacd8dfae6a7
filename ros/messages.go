package ros

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/depthscan/depthimage"
)

// DepthMessage is one depth image message extracted from a bag topic, laid
// out the way gobag's topic-to-JSON parsing emits it: bag receipt time in
// Meta, the sensor_msgs/Image fields in Data. The image payload arrives
// base64 encoded and json decodes it straight into the byte slice.
type DepthMessage struct {
	Meta struct {
		Secs  int
		Nsecs int
	}
	Data struct {
		Header struct {
			Seq   int
			Stamp struct {
				Secs  int
				Nsecs int
			}
			FrameID string `json:"frame_id"`
		}
		Height      int
		Width       int
		Encoding    string
		IsBigendian int `json:"is_bigendian"`
		Step        int
		Data        []byte
	}
}

// CaptureTime returns the header stamp when the recording driver set one,
// and otherwise falls back to the bag receipt time.
func (m *DepthMessage) CaptureTime() time.Time {
	if m.Data.Header.Stamp.Secs != 0 || m.Data.Header.Stamp.Nsecs != 0 {
		return time.Unix(int64(m.Data.Header.Stamp.Secs), int64(m.Data.Header.Stamp.Nsecs))
	}
	return time.Unix(int64(m.Meta.Secs), int64(m.Meta.Nsecs))
}

// Frame converts the message payload into a depth frame, sharing the
// underlying buffer.
func (m *DepthMessage) Frame() (*depthimage.DepthFrame, error) {
	if m.Data.IsBigendian != 0 {
		return nil, errors.New("big-endian depth data is not supported")
	}
	enc, err := depthimage.EncodingFromString(m.Data.Encoding)
	if err != nil {
		return nil, err
	}
	frame := &depthimage.DepthFrame{
		Width:    m.Data.Width,
		Height:   m.Data.Height,
		Step:     m.Data.Step,
		Encoding: enc,
		Data:     m.Data.Data,
	}
	if err := frame.CheckValid(); err != nil {
		return nil, err
	}
	return frame, nil
}
