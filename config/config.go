package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	iface "CamDetLoop/interface"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Model            string       `yaml:"model"`
	Labels           string       `yaml:"labels"`
	InferenceBackend string       `yaml:"inferenceBackend"`
	Camera           CameraConfig `yaml:"camera"`
	Detector         DetectorCfg  `yaml:"detector"`
	Gate             GateConfig   `yaml:"gate"`
	FPS              FPSConfig    `yaml:"fps"`
	Loop             LoopConfig   `yaml:"loop"`
	Output           OutputConfig `yaml:"output"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	HTTP             ServerConfig `yaml:"http"`
	GRPC             ServerConfig `yaml:"grpc"`
	Metrics          ServerConfig `yaml:"metrics"`
	Registry         RegistryCfg  `yaml:"registry"`
	Log              LogConfig    `yaml:"log"`
}

type CameraConfig struct {
	// ID is a device index ("0") or a path/URL understood by OpenCV.
	ID          string `yaml:"id"`
	ReplayDir   string `yaml:"replayDir"`
	ReplayLoop  bool   `yaml:"replayLoop"`
	MainWidth   int    `yaml:"mainWidth"`
	MainHeight  int    `yaml:"mainHeight"`
	LoresWidth  int    `yaml:"loresWidth"`
	LoresHeight int    `yaml:"loresHeight"`
	LoresFormat string `yaml:"loresFormat"`
	Stream      string `yaml:"stream"`
}

type DetectorCfg struct {
	NumThreads     int     `yaml:"numThreads"`
	EnableEdgeTPU  bool    `yaml:"enableEdgeTPU"`
	MaxResults     int     `yaml:"maxResults"`
	ScoreThreshold float32 `yaml:"scoreThreshold"`
}

type GateConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type FPSConfig struct {
	Window        int  `yaml:"window"`
	CountCaptured bool `yaml:"countCaptured"`
}

type LoopConfig struct {
	MaxCycles             uint64      `yaml:"maxCycles"`
	Pipelined             bool        `yaml:"pipelined"`
	QueueDepth            int         `yaml:"queueDepth"`
	ContinueOnDetectError bool        `yaml:"continueOnDetectError"`
	Retry                 RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	MaxRetryDelay time.Duration `yaml:"maxRetryDelay"`
}

type OutputConfig struct {
	Print bool `yaml:"print"`
	Log   bool `yaml:"log"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type RegistryCfg struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Interval      time.Duration `yaml:"interval"`
	InstanceClass string        `yaml:"instanceClass"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Default holds the values used when config.yaml leaves a field out.
func Default() Config {
	return Config{
		Model:            "efficientdet_lite0.tflite",
		InferenceBackend: "tflite",
		Camera: CameraConfig{
			ID:          "0",
			MainWidth:   640,
			MainHeight:  480,
			LoresWidth:  320,
			LoresHeight: 240,
			LoresFormat: "YUV420",
			Stream:      "lores",
		},
		Detector: DetectorCfg{
			NumThreads:     4,
			MaxResults:     3,
			ScoreThreshold: 0.7,
		},
		FPS: FPSConfig{Window: 10},
		Loop: LoopConfig{
			QueueDepth: 1,
			Retry: RetryConfig{
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
			},
		},
		Output:   OutputConfig{Print: true},
		MQTT:     MQTTConfig{Broker: "localhost:1883", ClientID: "camdet", Topic: "camdet/detections"},
		HTTP:     ServerConfig{Port: 8080},
		GRPC:     ServerConfig{Port: 50051},
		Metrics:  ServerConfig{Port: 9090},
		Registry: RegistryCfg{Interval: 5 * time.Second, InstanceClass: "Cpu"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// StreamConfig converts the camera section for iface.FrameSource.Configure.
func (c *Config) StreamConfig() (iface.StreamConfig, error) {
	format, err := iface.ParsePixelFormat(c.Camera.LoresFormat)
	if err != nil {
		return iface.StreamConfig{}, err
	}
	return iface.StreamConfig{
		Main:         iface.Size{Width: c.Camera.MainWidth, Height: c.Camera.MainHeight},
		LowRes:       iface.Size{Width: c.Camera.LoresWidth, Height: c.Camera.LoresHeight},
		LowResFormat: format,
	}, nil
}

func (c *Config) EngineConfig() iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath:      c.Model,
		UseAccelerator: c.Detector.EnableEdgeTPU,
		NumThreads:     c.Detector.NumThreads,
		MaxResults:     c.Detector.MaxResults,
		ScoreThreshold: c.Detector.ScoreThreshold,
		Names:          iface.NamesConf{File: c.Labels},
	}
}

// Validate rejects values the loop cannot run with.
func Validate(c *Config) error {
	var problems []string
	if c.Model == "" {
		problems = append(problems, "model path cannot be empty")
	}
	switch c.InferenceBackend {
	case "tflite", "dnn":
	default:
		problems = append(problems, fmt.Sprintf("unsupported inferenceBackend %q", c.InferenceBackend))
	}
	if c.Camera.MainWidth <= 0 || c.Camera.MainHeight <= 0 {
		problems = append(problems, "camera main size must be positive")
	}
	if c.Camera.LoresWidth <= 0 || c.Camera.LoresHeight <= 0 {
		problems = append(problems, "camera lores size must be positive")
	}
	if _, err := iface.ParsePixelFormat(c.Camera.LoresFormat); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Camera.Stream != "lores" && c.Camera.Stream != "main" {
		problems = append(problems, fmt.Sprintf("camera stream must be lores or main, got %q", c.Camera.Stream))
	}
	if c.Detector.NumThreads <= 0 {
		problems = append(problems, "detector numThreads must be positive")
	}
	if c.Detector.MaxResults <= 0 {
		problems = append(problems, "detector maxResults must be positive")
	}
	if c.Detector.ScoreThreshold < 0 || c.Detector.ScoreThreshold > 1 {
		problems = append(problems, fmt.Sprintf("detector scoreThreshold must be between 0.0 and 1.0, got %f", c.Detector.ScoreThreshold))
	}
	if c.Gate.Threshold < 0 {
		problems = append(problems, "gate threshold cannot be negative")
	}
	if c.FPS.Window <= 0 {
		problems = append(problems, "fps window must be positive")
	}
	if c.Loop.QueueDepth <= 0 {
		problems = append(problems, "loop queueDepth must be positive")
	}
	if c.Loop.Retry.MaxRetries < 0 {
		problems = append(problems, "loop retry maxRetries cannot be negative")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		problems = append(problems, "mqtt broker and topic are required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		problems = append(problems, "mqtt qos must be 0, 1 or 2")
	}
	servers := []struct {
		name string
		cfg  ServerConfig
	}{{"http", c.HTTP}, {"grpc", c.GRPC}, {"metrics", c.Metrics}}
	for _, s := range servers {
		if s.cfg.Enabled && (s.cfg.Port <= 0 || s.cfg.Port > 65535) {
			problems = append(problems, fmt.Sprintf("%s port %d out of range", s.name, s.cfg.Port))
		}
	}
	if c.Registry.Enabled {
		if c.Registry.Host == "" || c.Registry.Port <= 0 {
			problems = append(problems, "registry host and port are required when registry is enabled")
		}
		if c.Registry.Interval <= 0 {
			problems = append(problems, "registry interval must be positive")
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
