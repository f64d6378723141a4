package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CamDetLoop/fps"
	"CamDetLoop/gate"
	"CamDetLoop/imgproc"
	iface "CamDetLoop/interface"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSource serves 2x2 frames, gray unless format says otherwise; padding
// makes stride wider than a row.
type fakeSource struct {
	mu       sync.Mutex
	frames   [][]byte
	next     int
	failures int
	failWith error
	block    bool
	width    int
	format   iface.PixelFormat
}

func (s *fakeSource) Configure(iface.StreamConfig) error { return nil }
func (s *fakeSource) Start(context.Context) error         { return nil }
func (s *fakeSource) Close() error                        { return nil }

func (s *fakeSource) CaptureBuffer(ctx context.Context, stream string) (iface.Buffer, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		if s.failWith != nil {
			return iface.Buffer{}, s.failWith
		}
		return iface.Buffer{}, iface.Acquisition(nil, "sensor timeout")
	}
	if s.next >= len(s.frames) {
		s.mu.Unlock()
		if s.block {
			<-ctx.Done()
			return iface.Buffer{}, ctx.Err()
		}
		return iface.Buffer{}, iface.Acquisition(nil, "no more frames")
	}
	pix := s.frames[s.next]
	s.next++
	s.mu.Unlock()

	w := s.width
	if w == 0 {
		w = 2
	}
	format := s.format
	if format == iface.FormatUnknown {
		format = iface.FormatGray
	}
	row := w * format.Channels()
	stride := row + 2
	h := len(pix) / row
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		copy(data[y*stride:], pix[y*row:(y+1)*row])
		data[y*stride+row] = 0xEE
	}
	return iface.Buffer{Data: data, Width: w, Height: h, Stride: stride, Format: format}, nil
}

type fakeDetector struct {
	mu    sync.Mutex
	seqs  []uint64
	last  []byte
	err   error
	clock *clock.Mock
}

func (d *fakeDetector) Detect(ctx context.Context, frame iface.Frame) (iface.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if frame.Format != iface.FormatRGB {
		return iface.DetectionResult{}, iface.Detection(nil, "want rgb, got %s", frame.Format)
	}
	d.seqs = append(d.seqs, frame.Seq)
	d.last = frame.Pix
	if d.clock != nil {
		d.clock.Add(time.Second)
	}
	if d.err != nil {
		return iface.DetectionResult{}, d.err
	}
	return iface.DetectionResult{
		FrameSeq:   frame.Seq,
		Detections: []iface.Result{{Label: "person", Conf: 0.9}},
	}, nil
}

func (d *fakeDetector) calls() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.seqs...)
}

type report struct {
	seq uint64
	fps float64
}

type fakeSink struct {
	mu      sync.Mutex
	reports []report
	err     error
}

func (s *fakeSink) Emit(ctx context.Context, result iface.DetectionResult, fps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report{seq: result.FrameSeq, fps: fps})
	return s.err
}

type recorder struct {
	decisions []gate.Decision
	scores    []float64
	detected  int
	fps       []float64
}

func (r *recorder) GateObserved(obs gate.Observation) {
	r.decisions = append(r.decisions, obs.Decision)
	r.scores = append(r.scores, obs.Score)
}
func (r *recorder) Detected(iface.DetectionResult) { r.detected++ }
func (r *recorder) FPSUpdated(v float64)           { r.fps = append(r.fps, v) }

var (
	frameA = []byte{10, 10, 10, 10}
	frameB = []byte{10, 10, 10, 40}
)

type harness struct {
	source   *fakeSource
	detector *fakeDetector
	sink     *fakeSink
	rec      *recorder
	history  *gate.History
	counter  *fps.Counter
	clock    *clock.Mock
}

func newHarness(t *testing.T, frames ...[]byte) *harness {
	mock := clock.NewMock()
	return &harness{
		source:   &fakeSource{frames: frames},
		detector: &fakeDetector{clock: mock},
		sink:     &fakeSink{},
		rec:      &recorder{},
		history:  gate.NewHistory(),
		counter:  &fps.Counter{},
		clock:    mock,
	}
}

func (h *harness) loop(t *testing.T, window int, opts Options) *Loop {
	t.Helper()
	est, err := fps.New(h.counter, window, h.clock)
	require.NoError(t, err)
	l, err := New(Deps{
		Source:    h.source,
		Converter: imgproc.ToRGB{},
		Gate:      gate.New(h.history, 0),
		Detector:  h.detector,
		FPS:       est,
		Sink:      h.sink,
		Observer:  h.rec,
		Log:       zaptest.NewLogger(t),
	}, opts)
	require.NoError(t, err)
	return l
}

func TestRun_StaticThenChange(t *testing.T) {
	h := newHarness(t, frameA, frameA, frameB)
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: 3})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []gate.Decision{gate.Undecided, gate.Block, gate.Pass}, h.rec.decisions)
	assert.Equal(t, []uint64{3}, h.detector.calls())
	require.Len(t, h.sink.reports, 1)
	assert.Equal(t, report{seq: 3, fps: 0}, h.sink.reports[0])

	st := l.Stats()
	assert.Equal(t, uint64(3), st.Cycles)
	assert.Equal(t, uint64(1), st.Undecided)
	assert.Equal(t, uint64(1), st.Blocked)
	assert.Equal(t, uint64(1), st.Passed)
	assert.Equal(t, uint64(1), st.Detections)
	assert.False(t, st.Running)
}

func TestRun_BGRMainStream(t *testing.T) {
	bgrA := []byte{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	bgrB := []byte{10, 10, 10, 10, 10, 10, 10, 10, 10, 40, 20, 10}
	h := newHarness(t, bgrA, bgrA, bgrB)
	h.source.format = iface.FormatBGR
	l := h.loop(t, fps.DefaultWindow, Options{Stream: "main", Width: 2, MaxCycles: 3})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []gate.Decision{gate.Undecided, gate.Block, gate.Pass}, h.rec.decisions)
	assert.Equal(t, 250.0, h.rec.scores[2])
	assert.Equal(t, []uint64{3}, h.detector.calls())
	assert.Equal(t, []byte{10, 20, 40}, h.detector.last[9:])
	require.Len(t, h.sink.reports, 1)
}

func TestRun_DecisionsMapToDetections(t *testing.T) {
	h := newHarness(t, frameA, frameA, frameB, frameB)
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: 4})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []gate.Decision{gate.Undecided, gate.Block, gate.Pass, gate.Block}, h.rec.decisions)
	assert.Equal(t, 0.0, h.rec.scores[1])
	assert.Equal(t, 675.0, h.rec.scores[2])
	assert.Len(t, h.detector.calls(), 1)
	assert.Equal(t, 1, h.rec.detected)
	assert.LessOrEqual(t, h.history.Len(), gate.HistoryDepth)
}

func TestRun_FPSTicksOnlyOnPass(t *testing.T) {
	h := newHarness(t, frameA, frameB, frameA, frameB)
	l := h.loop(t, 2, Options{MaxCycles: 4})

	require.NoError(t, l.Run(context.Background()))
	require.Len(t, h.sink.reports, 3)
	assert.Equal(t, []float64{0, 1, 1}, []float64{h.sink.reports[0].fps, h.sink.reports[1].fps, h.sink.reports[2].fps})
	assert.Equal(t, uint64(3), h.counter.Count)
	assert.Equal(t, []float64{1}, h.rec.fps)
	assert.Equal(t, 1.0, l.Stats().FPS)
}

func TestRun_CountCapturedFrames(t *testing.T) {
	h := newHarness(t, frameA, frameB, frameA, frameB)
	l := h.loop(t, 2, Options{MaxCycles: 4, CountCapturedFrames: true})

	// The second tick lands before any time has passed and is skipped.
	require.NoError(t, l.Run(context.Background()))
	require.Len(t, h.sink.reports, 3)
	assert.Equal(t, []float64{0, 0, 1}, []float64{h.sink.reports[0].fps, h.sink.reports[1].fps, h.sink.reports[2].fps})
	assert.Equal(t, uint64(4), h.counter.Count)
}

func TestRun_AcquisitionFailureIsFatal(t *testing.T) {
	h := newHarness(t, frameA)
	l := h.loop(t, fps.DefaultWindow, Options{})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, iface.ErrAcquisition)
	assert.Equal(t, uint64(1), l.Stats().Cycles)
}

func TestRun_RetriesAcquisition(t *testing.T) {
	h := newHarness(t, frameA, frameB)
	h.source.failures = 2
	h.source.failWith = errors.New("v4l2 dequeue failed")
	l := h.loop(t, fps.DefaultWindow, Options{
		MaxCycles: 2,
		Retry:     RetryPolicy{MaxRetries: 2, RetryDelay: time.Millisecond, MaxRetryDelay: 2 * time.Millisecond},
	})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(2), l.Stats().Retries)
	assert.Len(t, h.detector.calls(), 1)
}

func TestRun_RetriesExhausted(t *testing.T) {
	h := newHarness(t, frameA)
	h.source.failures = 5
	l := h.loop(t, fps.DefaultWindow, Options{
		Retry: RetryPolicy{MaxRetries: 2, RetryDelay: time.Millisecond},
	})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, iface.ErrAcquisition)
	assert.Equal(t, uint64(2), l.Stats().Retries)
	assert.Equal(t, uint64(0), l.Stats().Cycles)
}

func TestRun_DetectionFailure(t *testing.T) {
	h := newHarness(t, frameA, frameB, frameA)
	h.detector.err = errors.New("invoke failed")
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: 3})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, iface.ErrDetection)
	assert.Contains(t, err.Error(), "invoke failed")
	assert.Empty(t, h.sink.reports)
	assert.Equal(t, uint64(2), l.Stats().Cycles)
}

func TestRun_ContinueOnDetectError(t *testing.T) {
	h := newHarness(t, frameA, frameB, frameA)
	h.detector.err = iface.Detection(nil, "backend fault")
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: 3, ContinueOnDetectError: true})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(2), l.Stats().DetectErrors)
	assert.Empty(t, h.sink.reports)
	assert.Equal(t, uint64(0), h.counter.Count)
}

func TestRun_GeometryChangeStops(t *testing.T) {
	h := newHarness(t, frameA, []byte{1, 2, 3, 4, 5, 6})
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: 2})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, iface.ErrInvalidInput)
	assert.Equal(t, 1, h.history.Len())
}

func TestRun_SinkErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, frameA, frameB, frameA)
	h.sink.err = errors.New("broker gone")
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: 3})

	require.NoError(t, l.Run(context.Background()))
	assert.Len(t, h.sink.reports, 2)
}

func TestRun_CancelReturnsNil(t *testing.T) {
	h := newHarness(t, frameA, frameB)
	h.source.block = true
	l := h.loop(t, fps.DefaultWindow, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return l.Stats().Cycles == 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestRun_UntilStopsLoop(t *testing.T) {
	h := newHarness(t, frameA, frameB, frameA, frameB)
	h.source.block = true
	l := h.loop(t, fps.DefaultWindow, Options{Until: func(s Stats) bool { return s.Passed >= 2 }})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(3), l.Stats().Cycles)
}

func TestRun_PipelinedKeepsOrder(t *testing.T) {
	frames := [][]byte{frameA, frameA, frameB, frameB, frameA, frameB, frameB, frameA}
	h := newHarness(t, frames...)
	l := h.loop(t, fps.DefaultWindow, Options{MaxCycles: uint64(len(frames)), Pipelined: true, QueueDepth: 3})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []gate.Decision{
		gate.Undecided, gate.Block, gate.Pass, gate.Block,
		gate.Pass, gate.Pass, gate.Block, gate.Pass,
	}, h.rec.decisions)
	assert.Equal(t, []uint64{3, 5, 6, 8}, h.detector.calls())
	for i := 1; i < len(h.sink.reports); i++ {
		assert.Less(t, h.sink.reports[i-1].seq, h.sink.reports[i].seq)
	}
}

func TestRun_PipelinedError(t *testing.T) {
	h := newHarness(t, frameA, frameB)
	l := h.loop(t, fps.DefaultWindow, Options{Pipelined: true})

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, iface.ErrAcquisition)
}

func TestRun_PipelinedCancel(t *testing.T) {
	h := newHarness(t, frameA, frameB)
	h.source.block = true
	l := h.loop(t, fps.DefaultWindow, Options{Pipelined: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Run(ctx))
	assert.Equal(t, uint64(2), l.Stats().Cycles)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.backoff(1))
	assert.Equal(t, 2*time.Second, p.backoff(2))
	assert.Equal(t, 4*time.Second, p.backoff(3))
	assert.Equal(t, 5*time.Second, p.backoff(4))
	assert.Equal(t, 5*time.Second, p.backoff(10))
}
