package vision

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	iface "CamDetLoop/interface"
	"CamDetLoop/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".pgm": true, ".ppm": true}

// Replay serves the images of a directory, in name order, as if they came
// from a camera. Both streams advance the same cursor.
type Replay struct {
	mu    sync.Mutex
	dir   string
	loop  bool
	log   *zap.Logger
	cfg   iface.StreamConfig
	files []string
	next  int
}

func NewReplay(dir string, loop bool, log *zap.Logger) *Replay {
	return &Replay{dir: dir, loop: loop, log: logger.OrDefault(log, "replay")}
}

func (r *Replay) Configure(cfg iface.StreamConfig) error {
	if cfg.Main.Width <= 0 || cfg.Main.Height <= 0 || cfg.LowRes.Width <= 0 || cfg.LowRes.Height <= 0 {
		return iface.InvalidInput("stream sizes must be positive: main %v lores %v", cfg.Main, cfg.LowRes)
	}
	if cfg.LowResFormat.Channels() == 0 {
		return iface.InvalidInput("unsupported lores format %s", cfg.LowResFormat)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	return nil
}

func (r *Replay) Start(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return iface.Acquisition(err, "read replay dir %s", r.dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(r.dir, e.Name()))
	}
	if len(files) == 0 {
		return iface.Acquisition(nil, "no images in %s", r.dir)
	}
	sort.Strings(files)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = files
	r.next = 0
	r.log.Info("replay started", zap.String("Dir", r.dir), zap.Int("Images", len(files)), zap.Bool("Loop", r.loop))
	return nil
}

func (r *Replay) CaptureBuffer(ctx context.Context, stream string) (iface.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return iface.Buffer{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.files) == 0 {
		return iface.Buffer{}, iface.Acquisition(nil, "replay not started")
	}

	var size iface.Size
	var format iface.PixelFormat
	switch stream {
	case StreamMain:
		size, format = r.cfg.Main, iface.FormatBGR
	case StreamLores:
		size, format = r.cfg.LowRes, r.cfg.LowResFormat
	default:
		return iface.Buffer{}, iface.Acquisition(nil, "unknown stream %q", stream)
	}

	if r.next >= len(r.files) {
		if !r.loop {
			return iface.Buffer{}, iface.Acquisition(nil, "replay of %s exhausted after %d images", r.dir, len(r.files))
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return iface.Buffer{}, iface.Acquisition(nil, "cannot decode %s", path)
	}
	buf, err := matToBuffer(img, size, format, time.Now())
	if err != nil {
		return iface.Buffer{}, iface.Acquisition(err, "replay %s", path)
	}
	return buf, nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = nil
	return nil
}
