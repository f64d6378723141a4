package vision

import (
	"context"
	"strconv"
	"sync"
	"time"

	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Camera reads a V4L2 device, video file or stream URL through OpenCV and
// serves it as a main BGR stream and a low resolution stream.
type Camera struct {
	mu      sync.Mutex
	id      string
	log     *zap.Logger
	cfg     iface.StreamConfig
	webcam  *gocv.VideoCapture
	img     gocv.Mat
	started bool
}

func NewCamera(id string, log *zap.Logger) *Camera {
	return &Camera{id: id, log: logger.OrDefault(log, "camera")}
}

func (c *Camera) Configure(cfg iface.StreamConfig) error {
	if cfg.Main.Width <= 0 || cfg.Main.Height <= 0 || cfg.LowRes.Width <= 0 || cfg.LowRes.Height <= 0 {
		return iface.InvalidInput("stream sizes must be positive: main %v lores %v", cfg.Main, cfg.LowRes)
	}
	if cfg.LowResFormat.Channels() == 0 {
		return iface.InvalidInput("unsupported lores format %s", cfg.LowResFormat)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return nil
}

// deviceArg turns "0" into a device index and leaves paths and URLs alone.
func deviceArg(id string) interface{} {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.cfg.Main.Width == 0 {
		return iface.Acquisition(nil, "camera %s started before Configure", c.id)
	}
	webcam, err := gocv.OpenVideoCapture(deviceArg(c.id))
	if err != nil {
		return iface.Acquisition(err, "open camera %s", c.id)
	}
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Main.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Main.Height))
	c.webcam = webcam
	c.img = gocv.NewMat()
	c.started = true
	c.log.Info("camera started",
		zap.String("ID", c.id),
		zap.Any("Main", c.cfg.Main),
		zap.Any("LowRes", c.cfg.LowRes),
		zap.String("LowResFormat", c.cfg.LowResFormat.String()))
	return nil
}

func (c *Camera) CaptureBuffer(ctx context.Context, stream string) (iface.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return iface.Buffer{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return iface.Buffer{}, iface.Acquisition(nil, "camera %s not started", c.id)
	}

	var size iface.Size
	var format iface.PixelFormat
	switch stream {
	case StreamMain:
		size, format = c.cfg.Main, iface.FormatBGR
	case StreamLores:
		size, format = c.cfg.LowRes, c.cfg.LowResFormat
	default:
		return iface.Buffer{}, iface.Acquisition(nil, "unknown stream %q", stream)
	}

	if ok := c.webcam.Read(&c.img); !ok {
		return iface.Buffer{}, iface.Acquisition(nil, "cannot read camera %s", c.id)
	}
	buf, err := matToBuffer(c.img, size, format, time.Now())
	if err != nil {
		return iface.Buffer{}, iface.Acquisition(err, "camera %s", c.id)
	}
	return buf, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return multierr.Combine(c.img.Close(), c.webcam.Close())
}
