package depthscan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/depthscan/depthimage"
	"go.viam.com/depthscan/transform"
)

var streamTestParams = &transform.PinholeCameraIntrinsics{Width: 3, Height: 1, Fx: 1, Fy: 1, Ppx: 1, Ppy: 0.5}

func uniformFrame(t *testing.T, d float64) *depthimage.DepthFrame {
	t.Helper()
	df, err := depthimage.NewDepthFrame(3, 1, depthimage.Encoding32FC1)
	test.That(t, err, test.ShouldBeNil)
	for x := 0; x < 3; x++ {
		df.SetAt(x, 0, d)
	}
	return df
}

type sourceStep struct {
	frame *depthimage.DepthFrame
	err   error
}

// scriptedSource plays back a fixed sequence of frames and errors, then
// reports exhaustion.
type scriptedSource struct {
	mu     sync.Mutex
	steps  []sourceStep
	idx    int
	closed bool
}

func (s *scriptedSource) Next(ctx context.Context) (*depthimage.DepthFrame, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.steps) {
		return nil, time.Time{}, ErrSourceExhausted
	}
	step := s.steps[s.idx]
	s.idx++
	if step.err != nil {
		return nil, time.Time{}, step.err
	}
	return step.frame, time.Unix(int64(s.idx), 0), nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSource) index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

func (s *scriptedSource) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func nextScan(t *testing.T, ch <-chan *Scan) *Scan {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatal("scan channel closed early")
		}
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scan")
	}
	return nil
}

func expectClosed(t *testing.T, ch <-chan *Scan) {
	t.Helper()
	select {
	case _, ok := <-ch:
		test.That(t, ok, test.ShouldBeFalse)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scan channel to close")
	}
}

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	c, err := NewConverter(DefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	return c
}

func TestStreamerDeliversScans(t *testing.T) {
	mock := clock.NewMock()
	src := &scriptedSource{steps: []sourceStep{
		{frame: uniformFrame(t, 2.0)},
		{frame: uniformFrame(t, 3.0)},
	}}

	s, err := NewStreamer(StreamerConfig{
		Source:     src,
		Converter:  newTestConverter(t),
		Intrinsics: streamTestParams,
		Interval:   time.Second,
		Logger:     golog.NewTestLogger(t),
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)

	mock.Add(time.Second)
	scan := nextScan(t, s.Scans())
	test.That(t, scan.Ranges[1], test.ShouldAlmostEqual, 2.0, 1e-6)
	test.That(t, scan.CapturedAt.Equal(time.Unix(1, 0)), test.ShouldBeTrue)
	test.That(t, scan.ScanTime, test.ShouldAlmostEqual, DefaultConfig().ScanTime)

	mock.Add(time.Second)
	scan = nextScan(t, s.Scans())
	test.That(t, scan.Ranges[1], test.ShouldAlmostEqual, 3.0, 1e-6)
	test.That(t, scan.CapturedAt.Equal(time.Unix(2, 0)), test.ShouldBeTrue)

	// the next tick drains the source and ends the stream
	mock.Add(time.Second)
	expectClosed(t, s.Scans())

	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, src.wasClosed(), test.ShouldBeTrue)
	test.That(t, s.Close(), test.ShouldBeNil)
}

func TestStreamerSkipsBadInput(t *testing.T) {
	mock := clock.NewMock()
	badFrame := &depthimage.DepthFrame{
		Width: 3, Height: 1, Step: 12,
		Encoding: depthimage.Encoding32FC1,
		Data:     make([]byte, 4),
	}
	src := &scriptedSource{steps: []sourceStep{
		{err: errors.New("transient read failure")},
		{frame: badFrame},
		{frame: uniformFrame(t, 4.0)},
	}}

	s, err := NewStreamer(StreamerConfig{
		Source:     src,
		Converter:  newTestConverter(t),
		Intrinsics: streamTestParams,
		Interval:   time.Second,
		Logger:     golog.NewTestLogger(t),
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	mock.Add(time.Second)
	waitFor(t, func() bool { return src.index() == 1 })
	mock.Add(time.Second)
	waitFor(t, func() bool { return src.index() == 2 })

	// both failures were logged and skipped; the good frame still arrives
	mock.Add(time.Second)
	scan := nextScan(t, s.Scans())
	test.That(t, scan.Ranges[1], test.ShouldAlmostEqual, 4.0, 1e-6)
}

func TestStreamerDropsStaleScans(t *testing.T) {
	mock := clock.NewMock()
	src := &scriptedSource{steps: []sourceStep{
		{frame: uniformFrame(t, 2.0)},
		{frame: uniformFrame(t, 3.0)},
	}}

	s, err := NewStreamer(StreamerConfig{
		Source:     src,
		Converter:  newTestConverter(t),
		Intrinsics: streamTestParams,
		Interval:   time.Second,
		QueueSize:  1,
		Logger:     golog.NewTestLogger(t),
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	mock.Add(time.Second)
	waitFor(t, func() bool { return len(s.Scans()) == 1 })
	mock.Add(time.Second)
	waitFor(t, func() bool { return src.index() == 2 })
	mock.Add(time.Second) // exhausts the source, closing the channel

	var got []*Scan
	done := make(chan struct{})
	go func() {
		for scan := range s.Scans() {
			got = append(got, scan)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out draining scans")
	}

	// the first scan was displaced by the second
	test.That(t, len(got), test.ShouldEqual, 1)
	test.That(t, got[0].Ranges[1], test.ShouldAlmostEqual, 3.0, 1e-6)
}

func TestStreamerMeasuredScanTime(t *testing.T) {
	mock := clock.NewMock()
	src := &scriptedSource{steps: []sourceStep{
		{frame: uniformFrame(t, 2.0)},
		{frame: uniformFrame(t, 2.0)},
	}}

	cfg := DefaultConfig()
	cfg.ScanTime = 0 // report the measured period instead
	conv, err := NewConverter(cfg)
	test.That(t, err, test.ShouldBeNil)

	s, err := NewStreamer(StreamerConfig{
		Source:     src,
		Converter:  conv,
		Intrinsics: streamTestParams,
		Interval:   time.Second,
		Logger:     golog.NewTestLogger(t),
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	mock.Add(time.Second)
	scan := nextScan(t, s.Scans())
	test.That(t, scan.ScanTime, test.ShouldEqual, 0)

	mock.Add(time.Second)
	scan = nextScan(t, s.Scans())
	test.That(t, scan.ScanTime, test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestStreamerCloseStopsIdleWorker(t *testing.T) {
	mock := clock.NewMock()
	src := &scriptedSource{steps: []sourceStep{{frame: uniformFrame(t, 2.0)}}}

	s, err := NewStreamer(StreamerConfig{
		Source:     src,
		Converter:  newTestConverter(t),
		Intrinsics: streamTestParams,
		Interval:   time.Second,
		Logger:     golog.NewTestLogger(t),
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)

	// no ticks ever fire; Close must still unblock the worker
	test.That(t, s.Close(), test.ShouldBeNil)
	expectClosed(t, s.Scans())
	test.That(t, src.wasClosed(), test.ShouldBeTrue)
}

func TestStreamerRealClock(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{frame: uniformFrame(t, 2.0)}}}

	s, err := NewStreamer(StreamerConfig{
		Source:     src,
		Converter:  newTestConverter(t),
		Intrinsics: streamTestParams,
		Interval:   10 * time.Millisecond,
		Logger:     golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	scan := nextScan(t, s.Scans())
	test.That(t, scan.Ranges[1], test.ShouldAlmostEqual, 2.0, 1e-6)
}

func TestStreamerConfigValidate(t *testing.T) {
	valid := StreamerConfig{
		Source:     &scriptedSource{},
		Converter:  newTestConverter(t),
		Intrinsics: streamTestParams,
		Interval:   time.Second,
		Logger:     golog.NewTestLogger(t),
	}
	test.That(t, valid.Validate(), test.ShouldBeNil)

	cfg := valid
	cfg.Source = nil
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "source")

	cfg = valid
	cfg.Converter = nil
	err = cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "converter")

	cfg = valid
	cfg.Intrinsics = nil
	err = cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "intrinsics")

	cfg = valid
	cfg.Logger = nil
	err = cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "logger")

	cfg = valid
	cfg.Interval = 0
	_, err = NewStreamer(cfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "interval")
}
