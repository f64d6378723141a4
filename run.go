package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	adhoc "CamDetLoop/Adhoc"
	"CamDetLoop/config"
	"CamDetLoop/engine"
	_ "CamDetLoop/engine/dnn"
	_ "CamDetLoop/engine/tflite"
	"CamDetLoop/fps"
	proto "CamDetLoop/gRPC"
	"CamDetLoop/gate"
	iface "CamDetLoop/interface"
	"CamDetLoop/logger"
	"CamDetLoop/loop"
	"CamDetLoop/monitor"
	"CamDetLoop/sink"
	"CamDetLoop/vision"
	"CamDetLoop/web"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func initLogger(cfg config.LogConfig) error {
	if cfg.Development {
		return logger.InitDevelopment(cfg.Level)
	}
	return logger.InitProduction(cfg.Level)
}

func openSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (iface.FrameSource, error) {
	var source iface.FrameSource
	if cfg.Camera.ReplayDir != "" {
		source = vision.NewReplay(cfg.Camera.ReplayDir, cfg.Camera.ReplayLoop, log.Named("replay"))
	} else {
		source = vision.NewCamera(cfg.Camera.ID, log.Named("camera"))
	}
	streams, err := cfg.StreamConfig()
	if err != nil {
		return nil, err
	}
	if err := source.Configure(streams); err != nil {
		return nil, err
	}
	if err := source.Start(ctx); err != nil {
		_ = source.Close()
		return nil, err
	}
	return source, nil
}

func openDetector(cfg *config.Config, log *zap.Logger) (*engine.Detector, error) {
	backend, err := engine.LoadEngine(cfg.InferenceBackend)
	if err != nil {
		return nil, err
	}
	detector := engine.New(backend, log.Named("engine"))
	if err := detector.LoadModel(cfg.EngineConfig()); err != nil {
		_ = detector.Destroy()
		return nil, err
	}
	return detector, nil
}

func streamWidth(cfg *config.Config) int {
	if cfg.Camera.Stream == vision.StreamMain {
		return cfg.Camera.MainWidth
	}
	return cfg.Camera.LoresWidth
}

func run(c *cli.Context, cfg *config.Config) error {
	if err := initLogger(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Log()

	log.Info("starting camdet",
		zap.Int("CPU", runtime.NumCPU()),
		zap.String("Model", cfg.Model),
		zap.String("Backend", cfg.InferenceBackend),
		zap.String("Camera", cfg.Camera.ID),
		zap.String("Stream", cfg.Camera.Stream),
		zap.Float64("GateThreshold", cfg.Gate.Threshold),
		zap.Bool("Pipelined", cfg.Loop.Pipelined),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	detector, err := openDetector(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to load detector: %w", err)
	}
	defer detector.Destroy()

	source, err := openSource(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer source.Close()

	estimator, err := fps.New(&fps.Counter{}, cfg.FPS.Window, nil)
	if err != nil {
		return err
	}

	hub := sink.NewHub()
	sinks := sink.Multi{hub}
	if cfg.Output.Print {
		sinks = append(sinks, sink.NewPrinter(os.Stdout))
	}
	if cfg.Output.Log {
		sinks = append(sinks, sink.NewLogSink(log.Named("results")))
	}
	if cfg.MQTT.Enabled {
		m := sink.NewMQTT(sink.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, log.Named("mqtt"))
		if err := m.Connect(ctx); err != nil {
			return err
		}
		defer m.Close()
		sinks = append(sinks, m)
	}

	var (
		observer  loop.Observer
		mon       *monitor.Monitor
		grpcCount prometheus.Counter
	)
	if cfg.Metrics.Enabled {
		mon, err = monitor.New(log.Named("monitor"))
		if err != nil {
			return err
		}
		observer = mon
		grpcCount = mon.GRPCTotal
	}

	lp, err := loop.New(loop.Deps{
		Source:    source,
		Converter: vision.CvtColor{},
		Gate:      gate.New(gate.NewHistory(), cfg.Gate.Threshold),
		Detector:  detector,
		FPS:       estimator,
		Sink:      sinks,
		Observer:  observer,
		Log:       log.Named("loop"),
	}, loop.Options{
		Stream:     cfg.Camera.Stream,
		Width:      streamWidth(cfg),
		MaxCycles:  cfg.Loop.MaxCycles,
		Pipelined:  cfg.Loop.Pipelined,
		QueueDepth: cfg.Loop.QueueDepth,
		Retry: loop.RetryPolicy{
			MaxRetries:    cfg.Loop.Retry.MaxRetries,
			RetryDelay:    cfg.Loop.Retry.RetryDelay,
			MaxRetryDelay: cfg.Loop.Retry.MaxRetryDelay,
		},
		ContinueOnDetectError: cfg.Loop.ContinueOnDetectError,
		CountCapturedFrames:   cfg.FPS.CountCaptured,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return lp.Run(gctx)
	})
	if cfg.HTTP.Enabled {
		srv := web.New(hub, lp.Stats, log.Named("web"))
		g.Go(func() error {
			return srv.Run(gctx, fmt.Sprintf(":%d", cfg.HTTP.Port))
		})
	}
	if cfg.GRPC.Enabled {
		srv := proto.NewServer(hub, lp.Stats, cancel, grpcCount, log.Named("grpc"))
		g.Go(func() error {
			return proto.StartGRPCServer(gctx, cfg.GRPC.Port, srv)
		})
	}
	if mon != nil {
		g.Go(func() error {
			return mon.StartMon(gctx, cfg.Metrics.Port)
		})
	}
	if cfg.Registry.Enabled {
		hb, err := newHeartbeat(cfg, log)
		if err != nil {
			log.Warn("registration disabled", zap.Error(err))
		} else {
			hb.FPS = func() float64 { return lp.Stats().FPS }
			g.Go(func() error {
				return hb.Run(gctx)
			})
		}
	}

	err = g.Wait()
	st := lp.Stats()
	log.Info("camdet stopped",
		zap.Uint64("Cycles", st.Cycles),
		zap.Uint64("Passed", st.Passed),
		zap.Uint64("Detections", st.Detections),
		zap.Float64("FPS", st.FPS),
	)
	return err
}

func newHeartbeat(cfg *config.Config, log *zap.Logger) (*adhoc.Heartbeat, error) {
	ip, err := adhoc.GetOutboundIP()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbound IP: %w", err)
	}
	class, ok := adhoc.ParseInstanceClass(cfg.Registry.InstanceClass)
	if !ok {
		log.Warn("invalid instanceClass in config, defaulting to Cpu", zap.String("InstanceClass", cfg.Registry.InstanceClass))
	}
	return adhoc.NewHeartbeat(cfg.Registry.Host, cfg.Registry.Port, ip, cfg.GRPC.Port, class, cfg.Registry.Interval, log.Named("adhoc")), nil
}
