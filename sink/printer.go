package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	iface "CamDetLoop/interface"
)

// Printer writes a short text block per report:
//
//	fps: 4.8
//	person 0.91 (12, 40) (200, 310)
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out}
}

func (p *Printer) Emit(ctx context.Context, result iface.DetectionResult, fps float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintf(p.out, "fps: %.1f\n", fps); err != nil {
		return err
	}
	for _, d := range result.Detections {
		_, err := fmt.Fprintf(p.out, "%s %.2f (%d, %d) (%d, %d)\n",
			d.Label, d.Conf,
			int(d.Box.LT.X), int(d.Box.LT.Y), int(d.Box.RB.X), int(d.Box.RB.Y))
		if err != nil {
			return err
		}
	}
	return nil
}
