package sink

import (
	"context"

	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"go.uber.org/zap"
)

type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: logger.OrDefault(log, "results")}
}

func (s *LogSink) Emit(ctx context.Context, result iface.DetectionResult, fps float64) error {
	labels := make([]string, 0, len(result.Detections))
	for _, d := range result.Detections {
		labels = append(labels, d.Label)
	}
	s.log.Info("detections",
		zap.String("ID", result.ID),
		zap.Uint64("FrameSeq", result.FrameSeq),
		zap.Float64("FPS", fps),
		zap.Duration("Latency", result.Latency),
		zap.Strings("Labels", labels))
	return nil
}
