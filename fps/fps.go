package fps

import (
	"time"

	iface "CamDetLoop/interface"

	"github.com/benbjohnson/clock"
)

// DefaultWindow is the number of ticks averaged per refresh.
const DefaultWindow = 10

// Counter is the estimator state. It is owned by the loop and handed to the
// estimator so it can be inspected in isolation.
type Counter struct {
	Count       uint64
	WindowStart time.Time
	FPS         float64
}

type Estimator struct {
	counter *Counter
	window  int
	clock   clock.Clock
}

// New starts the first window at the current time of clk. A nil clk uses
// the wall clock.
func New(counter *Counter, window int, clk clock.Clock) (*Estimator, error) {
	if window <= 0 {
		return nil, iface.Computation("fps window must be positive, got %d", window)
	}
	if clk == nil {
		clk = clock.New()
	}
	if counter == nil {
		counter = &Counter{}
	}
	counter.WindowStart = clk.Now()
	return &Estimator{counter: counter, window: window, clock: clk}, nil
}

func (e *Estimator) Window() int {
	return e.window
}

func (e *Estimator) Counter() Counter {
	return *e.counter
}

// Current returns the last computed value without counting a tick.
func (e *Estimator) Current() float64 {
	return e.counter.FPS
}

// Tick counts one cycle. Every window-th tick the rate over the elapsed
// window is recomputed; other ticks return the previous value. A window that
// took no measurable time keeps the previous value and reports
// ErrComputation.
func (e *Estimator) Tick() (float64, error) {
	c := e.counter
	c.Count++
	if c.Count%uint64(e.window) != 0 {
		return c.FPS, nil
	}
	now := e.clock.Now()
	elapsed := now.Sub(c.WindowStart)
	c.WindowStart = now
	if elapsed <= 0 {
		return c.FPS, iface.Computation("fps window of %d ticks elapsed in %s", e.window, elapsed)
	}
	c.FPS = float64(e.window) / elapsed.Seconds()
	return c.FPS, nil
}
