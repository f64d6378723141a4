package iface

import (
	"context"
	"time"
)

type Position struct {
	X, Y float32
}

type Box struct {
	LT Position
	RT Position
	RB Position
	LB Position
}

// NewBox builds a box from its top-left and bottom-right corners.
func NewBox(x1, y1, x2, y2 float32) Box {
	return Box{
		LT: Position{X: x1, Y: y1},
		RT: Position{X: x2, Y: y1},
		RB: Position{X: x2, Y: y2},
		LB: Position{X: x1, Y: y2},
	}
}

func (b Box) Center() Position {
	return Position{
		X: (b.LT.X + b.RB.X) / 2,
		Y: (b.LT.Y + b.RB.Y) / 2,
	}
}

func (b Box) Width() float32  { return b.RB.X - b.LT.X }
func (b Box) Height() float32 { return b.RB.Y - b.LT.Y }

type Result struct {
	Label   string
	ClassID int
	Conf    float32
	Box     Box
	Center  Position
}

// DetectionResult is produced fresh by every detect call. Detections are
// ordered by confidence, highest first.
type DetectionResult struct {
	ID         string
	FrameSeq   uint64
	Timestamp  time.Time
	Latency    time.Duration
	Detections []Result
}

// Report is what a sink receives for one qualifying cycle.
type Report struct {
	Result DetectionResult
	FPS    float64
}

type EngineConfig struct {
	ModelPath      string
	UseAccelerator bool
	NumThreads     int
	MaxResults     int
	ScoreThreshold float32
	Names          NamesConf
}

// NamesConf points at a label file, or carries the labels inline.
type NamesConf struct {
	File string
	Data []string
}

type Size struct {
	Width, Height int
}

type StreamConfig struct {
	Main         Size
	LowRes       Size
	LowResFormat PixelFormat
}

// FrameSource is the camera side of the loop. CaptureBuffer blocks until a
// buffer of the named stream is available.
type FrameSource interface {
	Configure(cfg StreamConfig) error
	Start(ctx context.Context) error
	CaptureBuffer(ctx context.Context, stream string) (Buffer, error)
	Close() error
}

type Converter interface {
	Convert(frame Frame) (Frame, error)
}

type Detector interface {
	Detect(ctx context.Context, frame Frame) (DetectionResult, error)
}

type ResultSink interface {
	Emit(ctx context.Context, result DetectionResult, fps float64) error
}

// Backend is an inference runtime the engine package drives.
type Backend interface {
	Load(cfg EngineConfig) error
	Infer(frame Frame) ([]Result, error)
	Close() error
}
