// Package imgproc holds the pure Go pixel plumbing between raw capture
// buffers, loop frames and image.Image values.
package imgproc

import (
	"image"

	iface "CamDetLoop/interface"
)

// Reshape takes the first Stride*Height bytes of buf as a (Height, Stride)
// plane and crops every row to width pixels. width <= 0 keeps buf.Width.
// YUV420 buffers yield their luminance plane as a gray frame.
func Reshape(buf iface.Buffer, width int) (iface.Frame, error) {
	if width <= 0 {
		width = buf.Width
	}
	format := buf.Format
	if format == iface.FormatYUV420 {
		format = iface.FormatGray
	}
	channels := format.Channels()
	if channels == 0 {
		return iface.Frame{}, iface.Acquisition(nil, "buffer has unsupported format %s", buf.Format)
	}
	rowBytes := width * channels
	if buf.Height <= 0 || width <= 0 {
		return iface.Frame{}, iface.Acquisition(nil, "buffer has non-positive geometry %dx%d", width, buf.Height)
	}
	if buf.Stride < rowBytes {
		return iface.Frame{}, iface.Acquisition(nil, "stride %d shorter than row of %d bytes", buf.Stride, rowBytes)
	}
	if need := buf.Stride * buf.Height; len(buf.Data) < need {
		return iface.Frame{}, iface.Acquisition(nil, "buffer holds %d bytes, want at least %d", len(buf.Data), need)
	}

	pix := make([]byte, rowBytes*buf.Height)
	for y := 0; y < buf.Height; y++ {
		copy(pix[y*rowBytes:(y+1)*rowBytes], buf.Data[y*buf.Stride:y*buf.Stride+rowBytes])
	}
	return iface.Frame{
		Timestamp: buf.Timestamp,
		Width:     width,
		Height:    buf.Height,
		Format:    format,
		Pix:       pix,
	}, nil
}

// ToRGB converts gray and BGR frames to RGB. Gray pixels are replicated into
// three channels, BGR pixels are swapped. RGB frames pass through.
type ToRGB struct{}

func (ToRGB) Convert(f iface.Frame) (iface.Frame, error) {
	switch f.Format {
	case iface.FormatGray, iface.FormatBGR:
	case iface.FormatRGB:
		return f, f.Validate()
	default:
		return iface.Frame{}, iface.InvalidInput("cannot convert %s to rgb", f.Format)
	}
	if err := f.Validate(); err != nil {
		return iface.Frame{}, err
	}
	pix := make([]byte, f.Area()*3)
	if f.Format == iface.FormatGray {
		for i, v := range f.Pix {
			pix[3*i] = v
			pix[3*i+1] = v
			pix[3*i+2] = v
		}
	} else {
		for i := 0; i < len(pix); i += 3 {
			pix[i], pix[i+1], pix[i+2] = f.Pix[i+2], f.Pix[i+1], f.Pix[i]
		}
	}
	out := f
	out.Format = iface.FormatRGB
	out.Pix = pix
	return out, nil
}

// ToImage copies an RGB, BGR or gray frame into an image.NRGBA.
func ToImage(f iface.Frame) (*image.NRGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	c := f.Channels()
	for i := 0; i < f.Area(); i++ {
		var r, g, b byte
		switch f.Format {
		case iface.FormatRGB:
			r, g, b = f.Pix[i*c], f.Pix[i*c+1], f.Pix[i*c+2]
		case iface.FormatBGR:
			b, g, r = f.Pix[i*c], f.Pix[i*c+1], f.Pix[i*c+2]
		default:
			r, g, b = f.Pix[i], f.Pix[i], f.Pix[i]
		}
		img.Pix[i*4] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// RGBBytes flattens img into packed RGB bytes, dropping alpha.
func RGBBytes(img *image.NRGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}
