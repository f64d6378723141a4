package iface

import (
	"fmt"
	"time"
)

type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatGray
	FormatRGB
	FormatBGR
	FormatYUV420
)

func (p PixelFormat) String() string {
	switch p {
	case FormatGray:
		return "GRAY"
	case FormatRGB:
		return "RGB"
	case FormatBGR:
		return "BGR"
	case FormatYUV420:
		return "YUV420"
	default:
		return "UNKNOWN"
	}
}

// Channels is the number of interleaved bytes per pixel. YUV420 is planar;
// its luminance plane counts as one channel.
func (p PixelFormat) Channels() int {
	switch p {
	case FormatGray, FormatYUV420:
		return 1
	case FormatRGB, FormatBGR:
		return 3
	default:
		return 0
	}
}

func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "GRAY", "gray", "Y8":
		return FormatGray, nil
	case "RGB", "rgb", "RGB888":
		return FormatRGB, nil
	case "BGR", "bgr", "BGR888":
		return FormatBGR, nil
	case "YUV420", "yuv420", "I420":
		return FormatYUV420, nil
	default:
		return FormatUnknown, fmt.Errorf("unsupported pixel format: %q", s)
	}
}

// Frame is a tightly packed row-major image. It must not be modified once
// captured.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    PixelFormat
	Pix       []byte
}

func (f Frame) Channels() int {
	return f.Format.Channels()
}

func (f Frame) Area() int {
	return f.Width * f.Height
}

func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return InvalidInput("frame has non-positive geometry %dx%d", f.Width, f.Height)
	}
	c := f.Channels()
	if c == 0 {
		return InvalidInput("frame has unsupported format %s", f.Format)
	}
	if want := f.Width * f.Height * c; len(f.Pix) != want {
		return InvalidInput("frame %dx%dx%d holds %d bytes, want %d", f.Width, f.Height, c, len(f.Pix), want)
	}
	return nil
}

func (f Frame) SameGeometry(o Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && f.Channels() == o.Channels()
}

func (f Frame) String() string {
	return fmt.Sprintf("frame#%d %dx%d %s", f.Seq, f.Width, f.Height, f.Format)
}

// Buffer is a raw capture. Its logical shape is (Height, Stride) with
// Stride >= Width*channels; Data may carry trailing planes.
type Buffer struct {
	Data      []byte
	Width     int
	Height    int
	Stride    int
	Format    PixelFormat
	Timestamp time.Time
}
