package vision

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"CamDetLoop/imgproc"
	iface "CamDetLoop/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func writeGray(t *testing.T, dir, name string, v uint8) {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(v), float64(v), float64(v), 0), 8, 12, gocv.MatTypeCV8UC3)
	defer img.Close()
	require.True(t, gocv.IMWrite(filepath.Join(dir, name), img))
}

func streams() iface.StreamConfig {
	return iface.StreamConfig{
		Main:         iface.Size{Width: 12, Height: 8},
		LowRes:       iface.Size{Width: 6, Height: 4},
		LowResFormat: iface.FormatYUV420,
	}
}

func TestNeutralChroma(t *testing.T) {
	out := neutralChroma([]byte{1, 2, 3, 4, 5, 6}, 3, 2)
	assert.Len(t, out, 6+4)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 128, 128, 128, 128}, out)
}

func TestReplay_LoresAndExhaustion(t *testing.T) {
	dir := t.TempDir()
	writeGray(t, dir, "b.png", 200)
	writeGray(t, dir, "a.png", 10)

	r := NewReplay(dir, false, zap.NewNop())
	require.NoError(t, r.Configure(streams()))
	require.NoError(t, r.Start(context.Background()))
	defer r.Close()

	buf, err := r.CaptureBuffer(context.Background(), StreamLores)
	require.NoError(t, err)
	assert.Equal(t, 6, buf.Width)
	assert.Equal(t, 4, buf.Height)
	assert.Equal(t, 6, buf.Stride)
	assert.Equal(t, iface.FormatYUV420, buf.Format)
	assert.Len(t, buf.Data, 6*4+chromaLen(6, 4))

	frame, err := imgproc.Reshape(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, iface.FormatGray, frame.Format)
	assert.InDelta(t, 10, int(frame.Pix[0]), 1)

	buf, err = r.CaptureBuffer(context.Background(), StreamMain)
	require.NoError(t, err)
	assert.Equal(t, iface.FormatBGR, buf.Format)
	assert.Len(t, buf.Data, 12*8*3)
	assert.InDelta(t, 200, int(buf.Data[0]), 1)

	_, err = r.CaptureBuffer(context.Background(), StreamLores)
	assert.ErrorIs(t, err, iface.ErrAcquisition)
}

func TestReplay_Errors(t *testing.T) {
	r := NewReplay(t.TempDir(), true, nil)
	require.NoError(t, r.Configure(streams()))
	assert.ErrorIs(t, r.Start(context.Background()), iface.ErrAcquisition)

	dir := t.TempDir()
	writeGray(t, dir, "only.png", 1)
	r = NewReplay(dir, true, nil)
	require.NoError(t, r.Configure(streams()))
	require.NoError(t, r.Start(context.Background()))
	_, err := r.CaptureBuffer(context.Background(), "raw")
	assert.ErrorIs(t, err, iface.ErrAcquisition)
	for i := 0; i < 3; i++ {
		_, err = r.CaptureBuffer(context.Background(), StreamLores)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, r.Configure(iface.StreamConfig{}), iface.ErrInvalidInput)
}

func TestCvtColorMatchesPureConversion(t *testing.T) {
	gray := iface.Frame{Width: 3, Height: 2, Format: iface.FormatGray, Pix: []byte{0, 50, 100, 150, 200, 250}}
	want, err := imgproc.ToRGB{}.Convert(gray)
	require.NoError(t, err)
	got, err := CvtColor{}.Convert(gray)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	bgr := iface.Frame{Width: 2, Height: 1, Format: iface.FormatBGR, Pix: []byte{1, 2, 3, 4, 5, 6}}
	want, err = imgproc.ToRGB{}.Convert(bgr)
	require.NoError(t, err)
	got, err = CvtColor{}.Convert(bgr)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	same, err := CvtColor{}.Convert(want)
	require.NoError(t, err)
	assert.Equal(t, want, same)

	_, err = CvtColor{}.Convert(iface.Frame{Width: 1, Height: 1, Format: iface.FormatYUV420, Pix: []byte{1}})
	assert.ErrorIs(t, err, iface.ErrInvalidInput)
}

func TestMatToBufferRGB(t *testing.T) {
	img, err := gocv.ImageToMatRGB(solid(4, 2, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	defer img.Close()
	buf, err := matToBuffer(img, iface.Size{Width: 4, Height: 2}, iface.FormatRGB, frameTime)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0}, buf.Data[:3])
	assert.Equal(t, 12, buf.Stride)
}

var frameTime = time.Unix(1700000000, 0)

func solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
