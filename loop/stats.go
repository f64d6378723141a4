package loop

import (
	"time"

	"CamDetLoop/gate"
	iface "CamDetLoop/interface"
)

// Stats is a snapshot of the loop counters.
type Stats struct {
	Running      bool
	StartedAt    time.Time
	Cycles       uint64
	Undecided    uint64
	Blocked      uint64
	Passed       uint64
	Detections   uint64
	DetectErrors uint64
	Retries      uint64
	LastScore    float64
	FPS          float64
}

// Observer receives loop events as they happen. Calls come from the
// goroutine running the gate, in cycle order.
type Observer interface {
	GateObserved(obs gate.Observation)
	Detected(result iface.DetectionResult)
	FPSUpdated(fps float64)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) GateObserved(obs gate.Observation) {
	for _, x := range o {
		x.GateObserved(obs)
	}
}

func (o Observers) Detected(result iface.DetectionResult) {
	for _, x := range o {
		x.Detected(result)
	}
}

func (o Observers) FPSUpdated(fps float64) {
	for _, x := range o {
		x.FPSUpdated(fps)
	}
}
