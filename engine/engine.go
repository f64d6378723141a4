package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Factory builds an unloaded backend.
type Factory func() iface.Backend

var (
	registryMu sync.RWMutex
	backends   = map[string]Factory{}
)

// Register makes a backend available to LoadEngine under name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = f
}

func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func LoadEngine(name string) (iface.Backend, error) {
	registryMu.RLock()
	f, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backend: %s", name)
	}
	return f(), nil
}

// Detector drives one backend through its lifecycle and turns raw backend
// output into a bounded DetectionResult. Detect calls are serialized.
type Detector struct {
	mu      sync.Mutex
	backend iface.Backend
	cfg     iface.EngineConfig
	names   []string
	State   int
	log     *zap.Logger
}

func New(backend iface.Backend, log *zap.Logger) *Detector {
	d := &Detector{backend: backend, State: UNREGISTERED, log: logger.OrDefault(log, "engine")}
	if backend != nil {
		d.State = REGISTERED
	}
	return d
}

func (d *Detector) LoadModel(cfg iface.EngineConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State == UNREGISTERED {
		return fmt.Errorf("detector not registered")
	}
	if cfg.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if cfg.ScoreThreshold < 0 || cfg.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be between 0.0 and 1.0, got %f", cfg.ScoreThreshold)
	}
	if cfg.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", cfg.MaxResults)
	}
	names, err := LoadNames(cfg.Names)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		embedded, err := ModelLabels(cfg.ModelPath)
		if err != nil {
			d.log.Debug("no labels in model metadata", zap.String("ModelPath", cfg.ModelPath), zap.Error(err))
		}
		names = embedded
	}
	if err := d.backend.Load(cfg); err != nil {
		return fmt.Errorf("failed to load model %s: %w", cfg.ModelPath, err)
	}
	d.cfg = cfg
	d.names = names
	d.State = IDLE
	d.log.Info("model loaded",
		zap.String("ModelPath", cfg.ModelPath),
		zap.Bool("UseAccelerator", cfg.UseAccelerator),
		zap.Int("NumThreads", cfg.NumThreads),
		zap.Int("MaxResults", cfg.MaxResults),
		zap.Float32("ScoreThreshold", cfg.ScoreThreshold),
		zap.Int("Labels", len(names)))
	return nil
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.cfg
	cfg.Names = iface.NamesConf{File: d.cfg.Names.File, Data: append([]string(nil), d.names...)}
	return cfg
}

// Detect runs inference on an RGB frame. A detector already inferring
// rejects the call as busy.
func (d *Detector) Detect(ctx context.Context, frame iface.Frame) (iface.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return iface.DetectionResult{}, err
	}
	if frame.Format != iface.FormatRGB {
		return iface.DetectionResult{}, iface.Detection(iface.InvalidInput("frame format %s", frame.Format), "detector needs an RGB frame")
	}
	if err := frame.Validate(); err != nil {
		return iface.DetectionResult{}, iface.Detection(err, "bad input frame")
	}
	backend, cfg, names, err := d.begin()
	if err != nil {
		return iface.DetectionResult{}, err
	}

	start := time.Now()
	raw, err := backend.Infer(frame)
	latency := time.Since(start)
	d.finish()
	if err != nil {
		return iface.DetectionResult{}, iface.Detection(err, "inference on %s", frame)
	}

	for i := range raw {
		if raw[i].Label == "" {
			raw[i].Label = LabelFor(names, raw[i].ClassID)
		}
		raw[i].Center = raw[i].Box.Center()
	}
	ts := frame.Timestamp
	if ts.IsZero() {
		ts = start
	}
	return iface.DetectionResult{
		ID:         uuid.NewString(),
		FrameSeq:   frame.Seq,
		Timestamp:  ts,
		Latency:    latency,
		Detections: Select(raw, cfg.MaxResults, cfg.ScoreThreshold),
	}, nil
}

// begin moves an idle detector to BUSY and hands out what inference needs,
// so the backend runs without d.mu held.
func (d *Detector) begin() (iface.Backend, iface.EngineConfig, []string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return nil, iface.EngineConfig{}, nil, iface.Detection(nil, "detector not registered")
	case REGISTERED:
		return nil, iface.EngineConfig{}, nil, iface.Detection(nil, "model not loaded")
	case BUSY:
		return nil, iface.EngineConfig{}, nil, iface.Detection(nil, "detector is busy")
	}
	d.State = BUSY
	return d.backend, d.cfg, d.names, nil
}

func (d *Detector) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State == BUSY {
		d.State = IDLE
	}
}

// CurrentState reads State under the detector lock.
func (d *Detector) CurrentState() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State
}

func (d *Detector) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.backend != nil && d.State != UNREGISTERED {
		err = d.backend.Close()
	}
	d.backend = nil
	d.cfg = iface.EngineConfig{}
	d.names = nil
	d.State = UNREGISTERED
	return err
}
