package gate

import iface "CamDetLoop/interface"

// HistoryDepth is the number of frames the gate compares.
const HistoryDepth = 2

// History holds the most recent frames, oldest first. Pushing onto a full
// history evicts the oldest frame.
type History struct {
	frames []iface.Frame
}

func NewHistory() *History {
	return &History{frames: make([]iface.Frame, 0, HistoryDepth+1)}
}

func (h *History) Push(f iface.Frame) {
	h.frames = append(h.frames, f)
	if len(h.frames) > HistoryDepth {
		h.frames[0] = iface.Frame{}
		h.frames = append(h.frames[:0], h.frames[1:]...)
	}
}

func (h *History) Len() int {
	return len(h.frames)
}

// Latest returns the most recent frame, if any.
func (h *History) Latest() (iface.Frame, bool) {
	if len(h.frames) == 0 {
		return iface.Frame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

// Frames returns a copy of the history, oldest first.
func (h *History) Frames() []iface.Frame {
	out := make([]iface.Frame, len(h.frames))
	copy(out, h.frames)
	return out
}

func (h *History) Reset() {
	for i := range h.frames {
		h.frames[i] = iface.Frame{}
	}
	h.frames = h.frames[:0]
}
