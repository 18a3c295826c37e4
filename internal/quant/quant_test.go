package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecast/internal/testutil"
)

func gradientFrame(w, h, seed int) Frame {
	f := FromNRGBA(testutil.Gradient(w, h, seed))
	// Vary alpha so that preservation is observable.
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = uint8((i / 4) % 256)
	}
	return f
}

func TestParamsForQuality(t *testing.T) {
	cases := []struct {
		q          int
		minQ, maxQ int
		dither     float64
	}{
		{0, 78, 80, 0.6},
		{50, 88, 90, 0.475},
		{100, 93, 95, 0.35},
		{-5, 78, 80, 0.6},
		{150, 93, 95, 0.35},
	}
	for _, tc := range cases {
		p := ParamsForQuality(tc.q)
		assert.Equal(t, tc.minQ, p.MinQuality, "q=%d", tc.q)
		assert.Equal(t, tc.maxQ, p.MaxQuality, "q=%d", tc.q)
		assert.Equal(t, MaxColors, p.MaxColors)
		assert.InDelta(t, tc.dither, p.Dither, 1e-9, "q=%d", tc.q)
	}
}

func TestBuildPaletteBoundedAndDeterministic(t *testing.T) {
	f := gradientFrame(64, 64, 3)

	p1, err := BuildPalette(f, ParamsForQuality(0))
	require.NoError(t, err)
	p2, err := BuildPalette(f, ParamsForQuality(0))
	require.NoError(t, err)

	assert.LessOrEqual(t, p1.Len(), MaxColors)
	assert.Greater(t, p1.Len(), 1)
	assert.Equal(t, p1.Colors(), p2.Colors())
}

func TestBuildPaletteSolidFrame(t *testing.T) {
	f := Frame{Width: 4, Height: 4, Pix: make([]uint8, 64)}
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = 10, 20, 30, 255
	}
	p, err := BuildPalette(f, ParamsForQuality(80))
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	assert.Equal(t, uint8(10), p.Colors()[0].R)
}

func TestBuildPaletteHonoursMaxColors(t *testing.T) {
	f := FromNRGBA(testutil.Gradient(64, 64, 5))
	params := ParamsForQuality(100)
	params.MaxColors = 8

	p, err := BuildPalette(f, params)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Len(), 8)
	assert.Greater(t, p.Len(), 1)
	_, ok := p.TransparentIndex()
	assert.False(t, ok, "opaque frames get no transparent entry")
}

func TestBuildPaletteKeepsTransparency(t *testing.T) {
	f := FromNRGBA(testutil.Gradient(16, 16, 0))
	// Left half fully transparent, right half at alpha 128.
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			i := (y*16 + x) * 4
			if x < 8 {
				f.Pix[i+3] = 0
			} else {
				f.Pix[i+3] = 128
			}
		}
	}
	params := ParamsForQuality(100)
	params.MaxColors = 16

	p, err := BuildPalette(f, params)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Len(), 16)

	idx, ok := p.TransparentIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx, "transparent entries sort first")
	for _, c := range p.Colors()[1:] {
		assert.Equal(t, uint8(128), c.A)
	}

	clear := Frame{Width: 2, Height: 2, Pix: make([]uint8, 16)}
	p, err = BuildPalette(clear, params)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	assert.Equal(t, uint8(0), p.Colors()[0].A)
}

func TestBuildPaletteMergesWithinTolerance(t *testing.T) {
	// Two colours four levels apart merge at low quality and stay apart at
	// the highest.
	f := Frame{Width: 2, Height: 1, Pix: []uint8{100, 100, 100, 255, 104, 104, 104, 255}}

	low, err := BuildPalette(f, ParamsForQuality(0))
	require.NoError(t, err)
	assert.Equal(t, 1, low.Len())

	high, err := BuildPalette(f, Params{MaxQuality: 100, MaxColors: MaxColors})
	require.NoError(t, err)
	assert.Equal(t, 2, high.Len())
}

func TestRemapRoundTripIsDeterministic(t *testing.T) {
	src := gradientFrame(48, 32, 1)
	orig := src.Clone()

	p, err := BuildPalette(src, ParamsForQuality(60))
	require.NoError(t, err)

	a, err := p.RemapRGBA(src)
	require.NoError(t, err)
	b, err := p.RemapRGBA(src)
	require.NoError(t, err)

	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, orig.Pix, src.Pix, "input buffer is not modified")

	// A second frame remapped through the first frame's palette only uses
	// palette colours.
	next, err := p.Remap(gradientFrame(48, 32, 2))
	require.NoError(t, err)
	for _, v := range next.Pix {
		assert.Less(t, int(v), p.Len())
	}
}

func TestQuantize(t *testing.T) {
	src := gradientFrame(16, 16, 0)
	out, p, err := Quantize(src, 50)
	require.NoError(t, err)
	assert.Len(t, out.Pix, len(src.Pix))
	assert.NotNil(t, p)

	_, _, err = Quantize(Frame{Width: 2, Height: 2, Pix: make([]uint8, 3)}, 50)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestBitsForQuality(t *testing.T) {
	cases := map[int]int{100: 8, 90: 8, 89: 7, 75: 7, 74: 6, 60: 6, 59: 5, 15: 5, 14: 4, 0: 4}
	for q, want := range cases {
		assert.Equal(t, want, BitsForQuality(q), "q=%d", q)
	}
	assert.Equal(t, 0.45, DitherStrength(3))
	assert.Equal(t, 0.6, DitherStrength(4))
	assert.Equal(t, 0.75, DitherStrength(5))
	assert.Equal(t, 1.0, DitherStrength(7))
	assert.True(t, DitherEnabled(5))
	assert.False(t, DitherEnabled(6))
}

func TestReduceBitDepthIdentityAtFullQuality(t *testing.T) {
	src := gradientFrame(20, 12, 4)
	out, err := ReduceForQuality(src, 100)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)
	out.Pix[0]++
	assert.NotEqual(t, src.Pix[0], out.Pix[0], "result does not alias the input")
}

func TestReduceBitDepthPreservesAlpha(t *testing.T) {
	src := gradientFrame(20, 12, 4)
	for _, q := range []int{0, 20, 65, 80} {
		for _, dither := range []bool{false, true} {
			bits := BitsForQuality(q)
			out, err := ReduceBitDepth(src, bits, DitherStrength(bits), dither)
			require.NoError(t, err)
			mask := uint8(0xff << (8 - bits))
			for i := 0; i < len(src.Pix); i += 4 {
				require.Equal(t, src.Pix[i+3], out.Pix[i+3], "alpha at %d", i)
				require.Equal(t, out.Pix[i]&mask, out.Pix[i], "red truncated to %d bits", bits)
			}
		}
	}
}

func TestReduceBitDepthWithoutDitherTruncates(t *testing.T) {
	src := Frame{Width: 1, Height: 1, Pix: []uint8{0xff, 0x87, 0x0f, 0x42}}
	out, err := ReduceBitDepth(src, 4, 0.6, false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0xf0, 0x80, 0x00, 0x42}, out.Pix)
}
