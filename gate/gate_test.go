package gate

import (
	"errors"
	"testing"

	iface "CamDetLoop/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgbFrame(w, h int, fill byte) iface.Frame {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = fill
	}
	return iface.Frame{Width: w, Height: h, Format: iface.FormatRGB, Pix: pix}
}

func TestObserve_IdenticalFramesBlock(t *testing.T) {
	g := New(NewHistory(), 0)
	a := rgbFrame(4, 3, 10)

	obs, err := g.Observe(a)
	require.NoError(t, err)
	assert.Equal(t, Undecided, obs.Decision)
	assert.False(t, obs.Scored)

	obs, err = g.Observe(a)
	require.NoError(t, err)
	assert.True(t, obs.Scored)
	assert.Equal(t, 0.0, obs.Score)
	assert.Equal(t, Block, obs.Decision)
}

func TestObserve_DifferentFramesPass(t *testing.T) {
	g := New(NewHistory(), 0)
	a := rgbFrame(4, 3, 10)
	b := rgbFrame(4, 3, 10)
	b.Pix[7] = 11

	_, err := g.Observe(a)
	require.NoError(t, err)
	obs, err := g.Observe(b)
	require.NoError(t, err)
	assert.Equal(t, Pass, obs.Decision)
	assert.Greater(t, obs.Score, 0.0)
	assert.InDelta(t, 1.0/12.0, obs.Score, 1e-12)
}

func TestObserve_HistoryNeverExceedsTwo(t *testing.T) {
	h := NewHistory()
	g := New(h, 0)
	for i := 0; i < 50; i++ {
		_, err := g.Observe(rgbFrame(2, 2, byte(i)))
		require.NoError(t, err)
		assert.LessOrEqual(t, h.Len(), HistoryDepth)
	}
	frames := h.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, byte(48), frames[0].Pix[0])
	assert.Equal(t, byte(49), frames[1].Pix[0])
}

func TestObserve_GeometryMismatch(t *testing.T) {
	h := NewHistory()
	g := New(h, 0)
	first := rgbFrame(4, 4, 1)
	_, err := g.Observe(first)
	require.NoError(t, err)

	_, err = g.Observe(rgbFrame(4, 5, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, iface.ErrInvalidInput))
	require.Equal(t, 1, h.Len())
	latest, _ := h.Latest()
	assert.Equal(t, first.Height, latest.Height)

	gray := iface.Frame{Width: 4, Height: 4, Format: iface.FormatGray, Pix: make([]byte, 16)}
	_, err = g.Observe(gray)
	assert.ErrorIs(t, err, iface.ErrInvalidInput)
	assert.Equal(t, 1, h.Len())
}

func TestObserve_MalformedFrame(t *testing.T) {
	h := NewHistory()
	g := New(h, 0)
	_, err := g.Observe(iface.Frame{Width: 2, Height: 2, Format: iface.FormatRGB, Pix: make([]byte, 5)})
	assert.ErrorIs(t, err, iface.ErrInvalidInput)
	assert.Equal(t, 0, h.Len())
}

func TestObserve_Threshold(t *testing.T) {
	g := New(NewHistory(), 5)
	a := rgbFrame(1, 1, 0)
	b := rgbFrame(1, 1, 0)
	b.Pix[0] = 2 // score 4

	_, err := g.Observe(a)
	require.NoError(t, err)
	obs, err := g.Observe(b)
	require.NoError(t, err)
	assert.Equal(t, 4.0, obs.Score)
	assert.Equal(t, Block, obs.Decision)

	c := rgbFrame(1, 1, 3) // score from b: 1+9+9 = 19
	obs, err = g.Observe(c)
	require.NoError(t, err)
	assert.Equal(t, 19.0, obs.Score)
	assert.Equal(t, Pass, obs.Decision)
}

func TestMeanSquaredError_Symmetric(t *testing.T) {
	a := rgbFrame(3, 3, 0)
	b := rgbFrame(3, 3, 0)
	for i := range a.Pix {
		a.Pix[i] = byte(i * 7)
		b.Pix[i] = byte(255 - i*3)
	}
	ab, err := MeanSquaredError(a, b)
	require.NoError(t, err)
	ba, err := MeanSquaredError(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Greater(t, ab, 0.0)
}

func TestMeanSquaredError_NoOverflow(t *testing.T) {
	const w, h = 640, 480
	black := rgbFrame(w, h, 0)
	white := rgbFrame(w, h, 255)
	score, err := MeanSquaredError(black, white)
	require.NoError(t, err)
	assert.Equal(t, float64(65025*3), score)
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory()
	h.Push(rgbFrame(1, 1, 1))
	h.Push(rgbFrame(1, 1, 2))
	h.Reset()
	assert.Equal(t, 0, h.Len())
	_, ok := h.Latest()
	assert.False(t, ok)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "pass", Pass.String())
	assert.Equal(t, "block", Block.String())
	assert.Equal(t, "undecided", Undecided.String())
}
