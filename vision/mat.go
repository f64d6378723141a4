// Package vision adapts OpenCV capture and color conversion to the loop's
// FrameSource and Converter interfaces.
package vision

import (
	"fmt"
	"image"
	"time"

	iface "CamDetLoop/interface"

	"gocv.io/x/gocv"
)

const (
	StreamMain  = "main"
	StreamLores = "lores"
)

// chromaLen is the size of the two quarter resolution U and V planes that
// follow the luminance plane in a YUV420 buffer.
func chromaLen(width, height int) int {
	return ((width + 1) / 2) * ((height + 1) / 2) * 2
}

// neutralChroma appends gray U and V planes to a luminance plane.
func neutralChroma(luma []byte, width, height int) []byte {
	out := make([]byte, len(luma), len(luma)+chromaLen(width, height))
	copy(out, luma)
	for i := 0; i < chromaLen(width, height); i++ {
		out = append(out, 128)
	}
	return out
}

// matToBuffer lays a BGR or gray Mat out as a stream buffer of the given size
// and format. The Mat is not modified.
func matToBuffer(src gocv.Mat, size iface.Size, format iface.PixelFormat, ts time.Time) (iface.Buffer, error) {
	if src.Empty() {
		return iface.Buffer{}, fmt.Errorf("empty frame")
	}
	work := src.Clone()
	defer work.Close()
	if work.Cols() != size.Width || work.Rows() != size.Height {
		gocv.Resize(work, &work, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationLinear)
	}

	switch format {
	case iface.FormatGray, iface.FormatYUV420:
		if work.Channels() == 3 {
			gocv.CvtColor(work, &work, gocv.ColorBGRToGray)
		}
	case iface.FormatRGB:
		if work.Channels() == 1 {
			gocv.CvtColor(work, &work, gocv.ColorGrayToRGB)
		} else {
			gocv.CvtColor(work, &work, gocv.ColorBGRToRGB)
		}
	case iface.FormatBGR:
		if work.Channels() == 1 {
			gocv.CvtColor(work, &work, gocv.ColorGrayToBGR)
		}
	default:
		return iface.Buffer{}, fmt.Errorf("unsupported stream format %s", format)
	}

	data := work.ToBytes()
	if format == iface.FormatYUV420 {
		data = neutralChroma(data, size.Width, size.Height)
	}
	return iface.Buffer{
		Data:      data,
		Width:     size.Width,
		Height:    size.Height,
		Stride:    size.Width * format.Channels(),
		Format:    format,
		Timestamp: ts,
	}, nil
}
