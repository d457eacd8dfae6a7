package depthscan

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/depthscan/depthimage"
	"go.viam.com/depthscan/transform"
)

// ErrSourceExhausted is returned by a FrameSource that has no more frames.
var ErrSourceExhausted = errors.New("no more depth frames")

// FrameSource supplies timestamped depth frames, replayed from a recording
// or read from a live camera. Implementations return ErrSourceExhausted once
// drained and may optionally implement io.Closer.
type FrameSource interface {
	Next(ctx context.Context) (*depthimage.DepthFrame, time.Time, error)
}

// StreamerConfig contains the parameters needed to construct a Streamer.
type StreamerConfig struct {
	Source     FrameSource
	Converter  *Converter
	Intrinsics *transform.PinholeCameraIntrinsics
	// Interval is the cadence at which frames are pulled and converted.
	Interval time.Duration
	// QueueSize bounds how many unconsumed scans are held before the oldest
	// is dropped. Defaults to 16.
	QueueSize int
	Logger    golog.Logger
	// Clock defaults to the wall clock; tests inject a mock.
	Clock clock.Clock
}

// Validate validates that the config contains all required parameters.
func (c StreamerConfig) Validate() error {
	if c.Source == nil {
		return errors.New("missing required parameter source")
	}
	if c.Converter == nil {
		return errors.New("missing required parameter converter")
	}
	if c.Intrinsics == nil {
		return errors.New("missing required parameter intrinsics")
	}
	if c.Logger == nil {
		return errors.New("missing required parameter logger")
	}
	if c.Interval <= 0 {
		return errors.Errorf("interval must be positive, got %v", c.Interval)
	}
	return nil
}

// A Streamer drives a Converter at a fixed cadence, pulling frames from a
// FrameSource and delivering scans on a channel. Slow consumers see the
// freshest scans; stale ones are dropped.
type Streamer struct {
	source     FrameSource
	converter  *Converter
	intrinsics *transform.PinholeCameraIntrinsics
	logger     golog.Logger
	clk        clock.Clock
	ticker     *clock.Ticker
	lastScanAt time.Time // worker-local, guards the measured scan period

	scans                   chan *Scan
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	closeOnce               sync.Once
	closeErr                error
}

// NewStreamer validates the config and starts streaming immediately.
func NewStreamer(cfg StreamerConfig) (*Streamer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	s := &Streamer{
		source:     cfg.Source,
		converter:  cfg.Converter,
		intrinsics: cfg.Intrinsics,
		logger:     cfg.Logger,
		clk:        cfg.Clock,
		// the ticker is created here rather than in the worker so a caller
		// holding a mock clock can advance it as soon as construction returns
		ticker:     cfg.Clock.Ticker(cfg.Interval),
		scans:      make(chan *Scan, queueSize),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}

	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(s.stream, s.activeBackgroundWorkers.Done)
	return s, nil
}

// Scans returns the channel scans are delivered on. It is closed once the
// source is exhausted or the streamer is closed.
func (s *Streamer) Scans() <-chan *Scan {
	return s.scans
}

func (s *Streamer) stream() {
	defer close(s.scans)
	defer s.ticker.Stop()

	for {
		select {
		case <-s.cancelCtx.Done():
			return
		case <-s.ticker.C:
		}

		frame, stamp, err := s.source.Next(s.cancelCtx)
		if err != nil {
			if errors.Is(err, ErrSourceExhausted) {
				s.logger.Debug("depth frame source exhausted")
				return
			}
			if s.cancelCtx.Err() != nil {
				return
			}
			s.logger.Errorw("failed to read depth frame", "error", err)
			continue
		}

		scan, err := s.converter.Convert(frame, s.intrinsics)
		if err != nil {
			s.logger.Errorw("failed to convert depth frame", "error", err, "stamp", stamp)
			continue
		}
		scan.CapturedAt = stamp
		now := s.clk.Now()
		if scan.ScanTime == 0 && !s.lastScanAt.IsZero() {
			// a zero configured scan time means "report the measured period"
			scan.ScanTime = now.Sub(s.lastScanAt).Seconds()
		}
		s.lastScanAt = now

		select {
		case s.scans <- scan:
		default:
			// full queue: drop the oldest so the consumer sees fresh data
			select {
			case <-s.scans:
				s.logger.Debug("dropping stale scan")
			default:
			}
			select {
			case s.scans <- scan:
			default:
			}
		}
	}
}

// Close stops streaming, waits for the worker to finish, and releases the
// source if it is closeable. Safe to call more than once.
func (s *Streamer) Close() error {
	s.closeOnce.Do(func() {
		s.cancelFunc()
		s.activeBackgroundWorkers.Wait()
		if closer, ok := s.source.(io.Closer); ok {
			s.closeErr = multierr.Combine(s.closeErr, closer.Close())
		}
	})
	return s.closeErr
}
