// Package dnn runs SSD detection networks through OpenCV's dnn module.
package dnn

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"CamDetLoop/engine"
	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const Name = "dnn"

// InputSize is the square blob side fed to the network.
const InputSize = 300

func init() {
	engine.Register(Name, func() iface.Backend { return New(nil) })
}

type Backend struct {
	mu     sync.Mutex
	log    *zap.Logger
	net    gocv.Net
	loaded bool
}

func New(log *zap.Logger) *Backend {
	return &Backend{log: logger.OrDefault(log, "dnn")}
}

// configFor finds the graph description shipped next to a weights file,
// e.g. model.pb + model.pbtxt or model.caffemodel + model.prototxt.
func configFor(modelPath string) string {
	base := strings.TrimSuffix(modelPath, filepath.Ext(modelPath))
	for _, ext := range []string{".pbtxt", ".prototxt"} {
		if matches, _ := filepath.Glob(base + ext); len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

func (b *Backend) Load(cfg iface.EngineConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		b.net.Close()
		b.loaded = false
	}
	net := gocv.ReadNet(cfg.ModelPath, configFor(cfg.ModelPath))
	if net.Empty() {
		return fmt.Errorf("error reading network model from %s", cfg.ModelPath)
	}
	if cfg.UseAccelerator {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	b.net = net
	b.loaded = true
	b.log.Info("network ready", zap.String("ModelPath", cfg.ModelPath), zap.Bool("CUDA", cfg.UseAccelerator))
	return nil
}

func (b *Backend) Infer(frame iface.Frame) ([]iface.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return nil, fmt.Errorf("network not loaded")
	}
	if frame.Format != iface.FormatRGB {
		return nil, fmt.Errorf("dnn backend needs RGB, got %s", frame.Format)
	}
	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	// input is already RGB, so no channel swap
	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(InputSize, InputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), false, false)
	defer blob.Close()
	b.net.SetInput(blob, "")
	prob := b.net.Forward("")
	defer prob.Close()
	if prob.Empty() {
		return nil, fmt.Errorf("forward pass produced no output")
	}

	rows, err := prob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading forward output: %w", err)
	}
	return engine.DecodeDetectionRows(rows, frame.Width, frame.Height), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return nil
	}
	b.loaded = false
	return b.net.Close()
}
