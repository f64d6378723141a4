package sink

import (
	"context"

	iface "CamDetLoop/interface"

	"go.uber.org/multierr"
)

// Multi emits to every sink, in order, even when some of them fail.
type Multi []iface.ResultSink

func (m Multi) Emit(ctx context.Context, result iface.DetectionResult, fps float64) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Emit(ctx, result, fps))
	}
	return err
}
