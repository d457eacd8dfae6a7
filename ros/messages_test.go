package ros

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/depthscan/depthimage"
)

// depthMessageJSON builds one topic line the way gobag lays it out: bag
// receipt time under meta, sensor_msgs/Image fields under data, the image
// payload base64 encoded.
func depthMessageJSON(encoding string, width, height, step, bigendian int, data []byte) string {
	return fmt.Sprintf(`{"meta":{"secs":5,"nsecs":500000000},`+
		`"data":{"header":{"seq":7,"stamp":{"secs":10,"nsecs":250000000},"frame_id":"camera_depth_frame"},`+
		`"height":%d,"width":%d,"encoding":%q,"is_bigendian":%d,"step":%d,"data":%q}}`,
		height, width, encoding, bigendian, step,
		base64.StdEncoding.EncodeToString(data))
}

func mmPayload(depths ...uint16) []byte {
	out := make([]byte, 2*len(depths))
	for i, d := range depths {
		binary.LittleEndian.PutUint16(out[2*i:], d)
	}
	return out
}

func meterPayload(depths ...float32) []byte {
	out := make([]byte, 4*len(depths))
	for i, d := range depths {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(d))
	}
	return out
}

func TestDepthMessage16UC1(t *testing.T) {
	line := depthMessageJSON("16UC1", 2, 1, 4, 0, mmPayload(1500, 0))

	var msg DepthMessage
	test.That(t, json.Unmarshal([]byte(line), &msg), test.ShouldBeNil)
	test.That(t, msg.Data.Header.FrameID, test.ShouldEqual, "camera_depth_frame")
	test.That(t, msg.CaptureTime().Equal(time.Unix(10, 250000000)), test.ShouldBeTrue)

	frame, err := msg.Frame()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Encoding, test.ShouldEqual, depthimage.Encoding16UC1)

	m, ok := frame.MetersAt(0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m, test.ShouldAlmostEqual, 1.5, 1e-9)
	_, ok = frame.MetersAt(1, 0)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDepthMessage32FC1(t *testing.T) {
	line := depthMessageJSON("32FC1", 2, 1, 8, 0, meterPayload(2.5, 0.25))

	var msg DepthMessage
	test.That(t, json.Unmarshal([]byte(line), &msg), test.ShouldBeNil)

	frame, err := msg.Frame()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Encoding, test.ShouldEqual, depthimage.Encoding32FC1)

	m, ok := frame.MetersAt(0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m, test.ShouldAlmostEqual, 2.5, 1e-9)
	m, ok = frame.MetersAt(1, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, m, test.ShouldAlmostEqual, 0.25, 1e-9)
}

func TestDepthMessageBigEndianRejected(t *testing.T) {
	line := depthMessageJSON("16UC1", 1, 1, 2, 1, mmPayload(1500))

	var msg DepthMessage
	test.That(t, json.Unmarshal([]byte(line), &msg), test.ShouldBeNil)

	_, err := msg.Frame()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "big-endian")
}

func TestDepthMessageUnknownEncoding(t *testing.T) {
	line := depthMessageJSON("rgb8", 1, 1, 3, 0, []byte{0, 0, 0})

	var msg DepthMessage
	test.That(t, json.Unmarshal([]byte(line), &msg), test.ShouldBeNil)

	_, err := msg.Frame()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported depth encoding")
}

func TestDepthMessageShortPayload(t *testing.T) {
	line := depthMessageJSON("16UC1", 4, 2, 8, 0, mmPayload(1500))

	var msg DepthMessage
	test.That(t, json.Unmarshal([]byte(line), &msg), test.ShouldBeNil)

	_, err := msg.Frame()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "buffer")
}

func TestDepthMessageCaptureTimeFallback(t *testing.T) {
	// no header stamp recorded; the bag receipt time stands in
	line := `{"meta":{"secs":5,"nsecs":500000000},` +
		`"data":{"header":{"seq":1,"stamp":{"secs":0,"nsecs":0},"frame_id":""},` +
		`"height":0,"width":0,"encoding":"16UC1","is_bigendian":0,"step":0,"data":""}}`

	var msg DepthMessage
	test.That(t, json.Unmarshal([]byte(line), &msg), test.ShouldBeNil)
	test.That(t, msg.CaptureTime().Equal(time.Unix(5, 500000000)), test.ShouldBeTrue)
}
