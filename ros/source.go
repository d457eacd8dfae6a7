package ros

import (
	"context"
	"sync"
	"time"

	"go.viam.com/depthscan"
	"go.viam.com/depthscan/depthimage"
)

// BagFrameSource serves extracted depth frames in recorded order.
type BagFrameSource struct {
	mu     sync.Mutex
	frames []TimedFrame
	idx    int
}

var _ depthscan.FrameSource = (*BagFrameSource)(nil)

// NewBagFrameSource wraps already extracted frames.
func NewBagFrameSource(frames []TimedFrame) *BagFrameSource {
	return &BagFrameSource{frames: frames}
}

// OpenBagFrameSource reads a bag file and extracts the depth frames recorded
// on topic.
func OpenBagFrameSource(filename, topic string) (*BagFrameSource, error) {
	rb, err := ReadBag(filename)
	if err != nil {
		return nil, err
	}
	frames, err := ExtractDepthFrames(rb, topic)
	if err != nil {
		return nil, err
	}
	return NewBagFrameSource(frames), nil
}

// Next returns the next recorded frame and its capture time, and
// depthscan.ErrSourceExhausted once the recording is drained.
func (s *BagFrameSource) Next(ctx context.Context) (*depthimage.DepthFrame, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.frames) {
		return nil, time.Time{}, depthscan.ErrSourceExhausted
	}
	tf := s.frames[s.idx]
	s.idx++
	return tf.Frame, tf.CapturedAt, nil
}
