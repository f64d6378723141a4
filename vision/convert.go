package vision

import (
	iface "CamDetLoop/interface"

	"gocv.io/x/gocv"
)

// CvtColor converts gray and BGR frames to RGB with OpenCV. RGB frames pass
// through.
type CvtColor struct{}

func (CvtColor) Convert(f iface.Frame) (iface.Frame, error) {
	var (
		matType gocv.MatType
		code    gocv.ColorConversionCode
	)
	switch f.Format {
	case iface.FormatGray:
		matType, code = gocv.MatTypeCV8UC1, gocv.ColorGrayToRGB
	case iface.FormatBGR:
		matType, code = gocv.MatTypeCV8UC3, gocv.ColorBGRToRGB
	case iface.FormatRGB:
		return f, f.Validate()
	default:
		return iface.Frame{}, iface.InvalidInput("cannot convert %s to rgb", f.Format)
	}
	if err := f.Validate(); err != nil {
		return iface.Frame{}, err
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Pix)
	if err != nil {
		return iface.Frame{}, iface.InvalidInput("wrap frame: %v", err)
	}
	defer src.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(src, &rgb, code)

	out := f
	out.Format = iface.FormatRGB
	out.Pix = rgb.ToBytes()
	return out, nil
}
