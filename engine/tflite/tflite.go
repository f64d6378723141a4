// Package tflite runs SSD-style TensorFlow Lite detection models, optionally
// on an EdgeTPU.
package tflite

import (
	"fmt"
	"math"
	"sync"

	"CamDetLoop/engine"
	"CamDetLoop/imgproc"
	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"github.com/disintegration/imaging"
	"github.com/mattn/go-tflite"
	"go.uber.org/zap"
)

const Name = "tflite"

func init() {
	engine.Register(Name, func() iface.Backend { return New(nil) })
}

// Backend owns one model, its options and its interpreter.
type Backend struct {
	mu          sync.Mutex
	log         *zap.Logger
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputW      int
	inputH      int
	inputType   tflite.TensorType
}

func New(log *zap.Logger) *Backend {
	return &Backend{log: logger.OrDefault(log, "tflite")}
}

func (b *Backend) Load(cfg iface.EngineConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()

	model := tflite.NewModelFromFile(cfg.ModelPath)
	if model == nil {
		return fmt.Errorf("failed to create model from %s", cfg.ModelPath)
	}
	options := tflite.NewInterpreterOptions()
	if options == nil {
		model.Delete()
		return fmt.Errorf("interpreter options failed to be created")
	}
	options.SetNumThread(cfg.NumThreads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		b.log.Warn("tflite", zap.String("msg", msg))
	}, nil)
	if cfg.UseAccelerator {
		if err := addAccelerator(options, b.log); err != nil {
			options.Delete()
			model.Delete()
			return err
		}
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return fmt.Errorf("failed to create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return fmt.Errorf("failed to allocate tensors: %v", status)
	}
	if n := interpreter.GetOutputTensorCount(); n < 4 {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return fmt.Errorf("model has %d output tensors, want boxes, classes, scores and count", n)
	}

	input := interpreter.GetInputTensor(0)
	b.inputH, b.inputW = input.Dim(1), input.Dim(2)
	b.inputType = input.Type()
	if input.Dim(3) != 3 {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return fmt.Errorf("model input has %d channels, want 3", input.Dim(3))
	}
	if b.inputType != tflite.UInt8 && b.inputType != tflite.Float32 {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return fmt.Errorf("unsupported input tensor type %v", b.inputType)
	}
	b.model, b.options, b.interpreter = model, options, interpreter
	b.log.Info("interpreter ready",
		zap.Int("InputWidth", b.inputW),
		zap.Int("InputHeight", b.inputH),
		zap.String("InputType", fmt.Sprint(b.inputType)))
	return nil
}

func (b *Backend) Infer(frame iface.Frame) ([]iface.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.interpreter == nil {
		return nil, fmt.Errorf("interpreter not loaded")
	}
	img, err := imgproc.ToImage(frame)
	if err != nil {
		return nil, err
	}
	if frame.Width != b.inputW || frame.Height != b.inputH {
		img = imaging.Resize(img, b.inputW, b.inputH, imaging.Linear)
	}
	pix := imgproc.RGBBytes(img)

	input := b.interpreter.GetInputTensor(0)
	var status tflite.Status
	if b.inputType == tflite.Float32 {
		norm := make([]float32, len(pix))
		for i, v := range pix {
			norm[i] = (float32(v) - 127.5) / 127.5
		}
		status = input.CopyFromBuffer(norm)
	} else {
		status = input.CopyFromBuffer(pix)
	}
	if status != tflite.OK {
		return nil, fmt.Errorf("copying to buffer failed: %v", status)
	}
	if status = b.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke failed: %v", status)
	}

	boxes := b.interpreter.GetOutputTensor(0).Float32s()
	classes := b.interpreter.GetOutputTensor(1).Float32s()
	scores := b.interpreter.GetOutputTensor(2).Float32s()
	count := b.interpreter.GetOutputTensor(3).Float32s()
	n := len(scores)
	if len(count) > 0 {
		if c := count[0]; math.IsNaN(float64(c)) || c < 0 {
			return nil, fmt.Errorf("model reported invalid detection count %v", c)
		}
		n = int(count[0])
	}
	return engine.DecodeSSD(boxes, classes, scores, n, frame.Width, frame.Height), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
	return nil
}

func (b *Backend) release() {
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.options != nil {
		b.options.Delete()
		b.options = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
}
