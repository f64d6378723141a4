// Package sink delivers detection reports to their consumers.
package sink

import (
	"time"

	iface "CamDetLoop/interface"
)

// Payload is the wire form of one report, shared by the MQTT, HTTP,
// websocket and gRPC surfaces.
type Payload struct {
	ID         string      `json:"id"`
	FrameSeq   uint64      `json:"frameSeq"`
	Timestamp  time.Time   `json:"timestamp"`
	LatencyMs  float64     `json:"latencyMs"`
	FPS        float64     `json:"fps"`
	Detections []Detection `json:"detections"`
}

type Detection struct {
	Label   string  `json:"label"`
	ClassID int     `json:"classId"`
	Score   float32 `json:"score"`
	Box     [4]int  `json:"box"`
	Center  [2]int  `json:"center"`
}

func NewPayload(r iface.Report) Payload {
	p := Payload{
		ID:         r.Result.ID,
		FrameSeq:   r.Result.FrameSeq,
		Timestamp:  r.Result.Timestamp,
		LatencyMs:  float64(r.Result.Latency.Microseconds()) / 1000,
		FPS:        r.FPS,
		Detections: make([]Detection, 0, len(r.Result.Detections)),
	}
	for _, d := range r.Result.Detections {
		p.Detections = append(p.Detections, Detection{
			Label:   d.Label,
			ClassID: d.ClassID,
			Score:   d.Conf,
			Box:     [4]int{int(d.Box.LT.X), int(d.Box.LT.Y), int(d.Box.RB.X), int(d.Box.RB.Y)},
			Center:  [2]int{int(d.Center.X), int(d.Center.Y)},
		})
	}
	return p
}
