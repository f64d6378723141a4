package gate

import (
	iface "CamDetLoop/interface"
)

type Decision int

const (
	// Undecided is reported while the history holds a single frame.
	Undecided Decision = iota
	Block
	Pass
)

func (d Decision) String() string {
	switch d {
	case Block:
		return "block"
	case Pass:
		return "pass"
	default:
		return "undecided"
	}
}

type Observation struct {
	Decision Decision
	Score    float64
	Scored   bool
}

// ChangeGate forwards a frame to inference only when it differs from the
// frame before it.
type ChangeGate struct {
	history   *History
	threshold float64
}

// New returns a gate over history. A frame passes when its score is strictly
// greater than threshold; threshold 0 passes any non-identical frame.
func New(history *History, threshold float64) *ChangeGate {
	if history == nil {
		history = NewHistory()
	}
	if threshold < 0 {
		threshold = 0
	}
	return &ChangeGate{history: history, threshold: threshold}
}

func (g *ChangeGate) Threshold() float64 {
	return g.threshold
}

func (g *ChangeGate) History() *History {
	return g.history
}

// Observe appends frame to the history and decides whether it should be
// detected. A frame whose geometry differs from the previous one is rejected
// and the history is left untouched.
func (g *ChangeGate) Observe(frame iface.Frame) (Observation, error) {
	if err := frame.Validate(); err != nil {
		return Observation{}, err
	}
	if prev, ok := g.history.Latest(); ok && !prev.SameGeometry(frame) {
		return Observation{}, iface.InvalidInput("frame geometry %dx%dx%d does not match previous %dx%dx%d",
			frame.Width, frame.Height, frame.Channels(), prev.Width, prev.Height, prev.Channels())
	}

	g.history.Push(frame)
	if g.history.Len() < HistoryDepth {
		return Observation{Decision: Undecided}, nil
	}

	frames := g.history.frames
	score, err := MeanSquaredError(frames[0], frames[1])
	if err != nil {
		return Observation{}, err
	}
	obs := Observation{Score: score, Scored: true, Decision: Block}
	if score > g.threshold {
		obs.Decision = Pass
	}
	return obs, nil
}

// MeanSquaredError is the sum of squared per-byte differences divided by
// the pixel count height*width.
func MeanSquaredError(a, b iface.Frame) (float64, error) {
	if !a.SameGeometry(b) {
		return 0, iface.InvalidInput("cannot compare %dx%d and %dx%d frames", a.Width, a.Height, b.Width, b.Height)
	}
	if len(a.Pix) != len(b.Pix) {
		return 0, iface.InvalidInput("frames hold %d and %d bytes", len(a.Pix), len(b.Pix))
	}
	area := a.Area()
	if area == 0 {
		return 0, iface.InvalidInput("empty frame")
	}
	var sum uint64
	for i := range a.Pix {
		d := int32(a.Pix[i]) - int32(b.Pix[i])
		sum += uint64(d * d)
	}
	return float64(sum) / float64(area), nil
}
