package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"CamDetLoop/gate"
	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Monitor owns a private registry with the process and loop metrics. It
// receives loop events as a loop.Observer.
type Monitor struct {
	Registry  *prometheus.Registry
	GRPCTotal prometheus.Counter

	pid        *process.Process
	memUsage   prometheus.Gauge
	cpuUsage   prometheus.Gauge
	fps        prometheus.Gauge
	decisions  *prometheus.CounterVec
	score      prometheus.Gauge
	inference  prometheus.Histogram
	detections prometheus.Counter
	log        *zap.Logger
}

func New(log *zap.Logger) (*Monitor, error) {
	pid, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect own process: %w", err)
	}
	m := &Monitor{
		Registry: prometheus.NewRegistry(),
		pid:      pid,
		log:      logger.OrDefault(log, "monitor"),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
		GRPCTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests processed",
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camdet_fps",
			Help: "Detection throughput over the last fps window",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camdet_gate_decisions_total",
			Help: "Change gate decisions by outcome",
		}, []string{"decision"}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camdet_dissimilarity_score",
			Help: "Mean squared difference between the last two frames",
		}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camdet_inference_seconds",
			Help:    "Detector call latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camdet_detections_total",
			Help: "Objects reported by the detector",
		}),
	}
	m.Registry.MustRegister(m.memUsage, m.cpuUsage, m.GRPCTotal, m.fps, m.decisions, m.score, m.inference, m.detections)
	for _, d := range []gate.Decision{gate.Undecided, gate.Block, gate.Pass} {
		m.decisions.WithLabelValues(d.String())
	}
	return m, nil
}

func (m *Monitor) GateObserved(obs gate.Observation) {
	m.decisions.WithLabelValues(obs.Decision.String()).Inc()
	if obs.Scored {
		m.score.Set(obs.Score)
	}
}

func (m *Monitor) Detected(result iface.DetectionResult) {
	m.inference.Observe(result.Latency.Seconds())
	m.detections.Add(float64(len(result.Detections)))
}

func (m *Monitor) FPSUpdated(fps float64) {
	m.fps.Set(fps)
}

func (m *Monitor) CheckProcessInfo() error {
	memInfo, err := m.pid.MemoryInfo()
	if err != nil {
		return err
	}
	cpuPercent, err := m.pid.CPUPercent()
	if err != nil {
		return err
	}
	m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	return nil
}

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// StartMon serves /metrics on port and samples the process every 500ms
// until ctx is cancelled.
func (m *Monitor) StartMon(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	errCh := make(chan error, 1)
	go func() {
		m.log.Info("metrics server listening", zap.Int("Port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("prometheus server: %w", err)
		case <-ticker.C:
			if err := m.CheckProcessInfo(); err != nil {
				m.log.Debug("process sample failed", zap.Error(err))
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
