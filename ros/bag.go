// Package ros replays depth image topics recorded in rosbag files.
package ros

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/depthscan/depthimage"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()

	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}

	return rb, nil
}

// WriteTopicsJSON writes data from a rosbag into JSON files, filtered and sorted by topic.
func WriteTopicsJSON(rb *rosbag.RosBag, startTime, endTime int64, topicsFilter []string) error {
	var timeFilterFunc func(int64) bool
	if startTime == 0 || endTime == 0 {
		timeFilterFunc = func(timestamp int64) bool {
			return true
		}
	} else {
		timeFilterFunc = func(timestamp int64) bool {
			return timestamp >= startTime && timestamp <= endTime
		}
	}

	var topicFilterFunc func(string) bool
	if len(topicsFilter) == 0 {
		topicFilterFunc = func(string) bool {
			return true
		}
	} else {
		topicsFilterMap := make(map[string]bool)
		for _, topic := range topicsFilter {
			topicsFilterMap[topic] = true
		}
		topicFilterFunc = func(topic string) bool {
			_, ok := topicsFilterMap[topic]
			return ok
		}
	}

	if err := rb.ParseTopicsToJSON("", timeFilterFunc, topicFilterFunc, false); err != nil {
		return errors.Wrapf(err, "error while parsing bag to JSON")
	}

	return nil
}

// TimedFrame pairs a depth frame with its capture time and source frame id.
type TimedFrame struct {
	Frame      *depthimage.DepthFrame
	CapturedAt time.Time
	FrameID    string
}

// ExtractDepthFrames parses one depth image topic out of a bag and decodes
// every message on it.
func ExtractDepthFrames(rb *rosbag.RosBag, topic string) ([]TimedFrame, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	// gobag keys parsed topics by their lowercased, slash-stripped name
	msgs := rb.TopicsAsJSON[topicKey(topic)]
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}

	return DecodeDepthMessages(msgs)
}

func topicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// DecodeDepthMessages decodes newline-delimited depth message JSON, one
// message per line, the format gobag produces per topic.
func DecodeDepthMessages(r io.Reader) ([]TimedFrame, error) {
	reader := bufio.NewReader(r)
	var frames []TimedFrame
	for {
		data, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		var msg DepthMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.Wrapf(err, "malformed depth message %d", len(frames))
		}
		frame, err := msg.Frame()
		if err != nil {
			return nil, errors.Wrapf(err, "depth message %d", len(frames))
		}

		frames = append(frames, TimedFrame{
			Frame:      frame,
			CapturedAt: msg.CaptureTime(),
			FrameID:    msg.Data.Header.FrameID,
		})
	}

	return frames, nil
}
