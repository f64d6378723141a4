// Package loop drives the capture, change gate, detection and emission cycle.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"CamDetLoop/fps"
	"CamDetLoop/gate"
	"CamDetLoop/imgproc"
	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errStopped = errors.New("stop condition reached")

// Deps are the collaborators of one loop. Observer and Clock are optional.
type Deps struct {
	Source    iface.FrameSource
	Converter iface.Converter
	Gate      *gate.ChangeGate
	Detector  iface.Detector
	FPS       *fps.Estimator
	Sink      iface.ResultSink
	Observer  Observer
	Clock     clock.Clock
	Log       *zap.Logger
}

type Options struct {
	// Stream is the FrameSource stream captured every cycle.
	Stream string
	// Width crops captured rows; 0 keeps the buffer width.
	Width int
	// MaxCycles stops the loop after that many captured frames; 0 runs
	// until ctx is cancelled.
	MaxCycles uint64
	// Until, when set, is checked after every cycle and stops the loop
	// once it returns true.
	Until func(Stats) bool
	// Pipelined captures the next frame while the current one is gated and
	// detected. Frames are still processed one at a time in capture order.
	Pipelined  bool
	QueueDepth int
	Retry      RetryPolicy
	// ContinueOnDetectError logs a failed detection and goes on with the
	// next cycle instead of stopping.
	ContinueOnDetectError bool
	// CountCapturedFrames ticks the fps counter for every captured frame
	// rather than only for frames that went through detection.
	CountCapturedFrames bool
}

type Loop struct {
	deps Deps
	opts Options
	log  *zap.Logger

	seq uint64

	mu    sync.RWMutex
	stats Stats
}

func New(deps Deps, opts Options) (*Loop, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("loop needs a frame source")
	case deps.Converter == nil:
		return nil, fmt.Errorf("loop needs a converter")
	case deps.Gate == nil:
		return nil, fmt.Errorf("loop needs a change gate")
	case deps.Detector == nil:
		return nil, fmt.Errorf("loop needs a detector")
	case deps.FPS == nil:
		return nil, fmt.Errorf("loop needs an fps estimator")
	case deps.Sink == nil:
		return nil, fmt.Errorf("loop needs a result sink")
	}
	if opts.Stream == "" {
		opts.Stream = "lores"
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1
	}
	if opts.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("retry maxRetries cannot be negative")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Loop{deps: deps, opts: opts, log: logger.OrDefault(deps.Log, "loop")}, nil
}

func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

func (l *Loop) update(fn func(s *Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

// Run cycles until ctx is cancelled, a stop condition is met, or a fatal
// error occurs. Cancellation is not an error.
func (l *Loop) Run(ctx context.Context) error {
	now := l.deps.Clock.Now()
	l.update(func(s *Stats) {
		s.Running = true
		s.StartedAt = now
	})
	defer l.update(func(s *Stats) { s.Running = false })

	l.log.Info("loop started",
		zap.String("Stream", l.opts.Stream),
		zap.Float64("GateThreshold", l.deps.Gate.Threshold()),
		zap.Int("FPSWindow", l.deps.FPS.Window()),
		zap.Uint64("MaxCycles", l.opts.MaxCycles),
		zap.Bool("Pipelined", l.opts.Pipelined))

	var err error
	if l.opts.Pipelined {
		err = l.runPipelined(ctx)
	} else {
		err = l.runSequential(ctx)
	}

	st := l.Stats()
	fields := []zap.Field{
		zap.Uint64("Cycles", st.Cycles),
		zap.Uint64("Passed", st.Passed),
		zap.Uint64("Detections", st.Detections),
	}
	switch {
	case errors.Is(err, errStopped), err == nil:
		l.log.Info("loop finished", fields...)
		return nil
	case ctx.Err() != nil:
		l.log.Info("loop cancelled", fields...)
		return nil
	default:
		l.log.Error("loop stopped", append(fields, zap.Error(err))...)
		return err
	}
}

func (l *Loop) more(captured uint64) bool {
	return l.opts.MaxCycles == 0 || captured < l.opts.MaxCycles
}

func (l *Loop) stopRequested() bool {
	return l.opts.Until != nil && l.opts.Until(l.Stats())
}

func (l *Loop) runSequential(ctx context.Context) error {
	for n := uint64(0); l.more(n); n++ {
		frame, err := l.acquire(ctx)
		if err != nil {
			return err
		}
		if err := l.process(ctx, frame); err != nil {
			return err
		}
		if l.stopRequested() {
			return errStopped
		}
	}
	return nil
}

func (l *Loop) runPipelined(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan iface.Frame, l.opts.QueueDepth)

	g.Go(func() error {
		defer close(frames)
		for n := uint64(0); l.more(n); n++ {
			frame, err := l.acquire(gctx)
			if err != nil {
				return err
			}
			select {
			case frames <- frame:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		for frame := range frames {
			if err := l.process(gctx, frame); err != nil {
				return err
			}
			if l.stopRequested() {
				return errStopped
			}
		}
		return nil
	})
	return g.Wait()
}

// acquire captures, reshapes and converts one frame, retrying acquisition
// failures according to the retry policy.
func (l *Loop) acquire(ctx context.Context) (iface.Frame, error) {
	var frame iface.Frame
	err := withRetry(ctx, l.deps.Clock, l.opts.Retry, l.log, func(ctx context.Context) error {
		buf, err := l.deps.Source.CaptureBuffer(ctx, l.opts.Stream)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, iface.ErrAcquisition) {
				err = iface.Acquisition(err, "capture %s", l.opts.Stream)
			}
			return err
		}
		frame, err = imgproc.Reshape(buf, l.opts.Width)
		return err
	}, func(int, error) {
		l.update(func(s *Stats) { s.Retries++ })
	})
	if err != nil {
		return iface.Frame{}, err
	}

	l.seq++
	frame.Seq = l.seq
	if frame.Timestamp.IsZero() {
		frame.Timestamp = l.deps.Clock.Now()
	}
	converted, err := l.deps.Converter.Convert(frame)
	if err != nil {
		return iface.Frame{}, fmt.Errorf("convert %s: %w", frame, err)
	}
	return converted, nil
}

// process gates one converted frame and, when it passes, detects and emits.
func (l *Loop) process(ctx context.Context, frame iface.Frame) error {
	obs, err := l.deps.Gate.Observe(frame)
	if err != nil {
		return fmt.Errorf("gate %s: %w", frame, err)
	}
	l.update(func(s *Stats) {
		s.Cycles++
		switch obs.Decision {
		case gate.Pass:
			s.Passed++
		case gate.Block:
			s.Blocked++
		default:
			s.Undecided++
		}
		if obs.Scored {
			s.LastScore = obs.Score
		}
	})
	if l.deps.Observer != nil {
		l.deps.Observer.GateObserved(obs)
	}
	l.log.Debug("cycle",
		zap.Uint64("Seq", frame.Seq),
		zap.Stringer("Decision", obs.Decision),
		zap.Float64("Score", obs.Score),
		zap.Bool("Scored", obs.Scored))

	if l.opts.CountCapturedFrames {
		l.tick()
	}
	if obs.Decision != gate.Pass {
		return nil
	}

	result, err := l.deps.Detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, iface.ErrDetection) {
			err = iface.Detection(err, "detect %s", frame)
		}
		if l.opts.ContinueOnDetectError {
			l.update(func(s *Stats) { s.DetectErrors++ })
			l.log.Warn("detection failed, skipping frame", zap.Uint64("Seq", frame.Seq), zap.Error(err))
			return nil
		}
		return err
	}
	l.update(func(s *Stats) { s.Detections += uint64(len(result.Detections)) })
	if l.deps.Observer != nil {
		l.deps.Observer.Detected(result)
	}

	current := l.deps.FPS.Current()
	if !l.opts.CountCapturedFrames {
		current = l.tick()
	}

	if err := l.deps.Sink.Emit(ctx, result, current); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("emit failed", zap.Uint64("Seq", frame.Seq), zap.Error(err))
	}
	return nil
}

func (l *Loop) tick() float64 {
	before := l.deps.FPS.Counter().FPS
	current, err := l.deps.FPS.Tick()
	if err != nil {
		l.log.Warn("fps not refreshed", zap.Error(err))
	}
	l.update(func(s *Stats) { s.FPS = current })
	if current != before && l.deps.Observer != nil {
		l.deps.Observer.FPSUpdated(current)
	}
	return current
}
