package quant

const MaxColors = 256

// Params controls palette construction and remapping.
type Params struct {
	MinQuality int
	MaxQuality int
	MaxColors  int
	Dither     float64
}

// ParamsForQuality maps a 0..100 UI quality to quantizer parameters. The
// quality band is kept within 70..95 so that low settings do not collapse the
// palette, and higher quality lowers the dithering floor.
func ParamsForQuality(q int) Params {
	q = clampInt(q, 0, 100)
	maxQ := clampInt(q*20/100+80, 70, 95)
	return Params{
		MinQuality: maxQ - 2,
		MaxQuality: maxQ,
		MaxColors:  MaxColors,
		Dither:     clampFloat(0.6-0.25*float64(q)/100, 0.35, 0.6),
	}
}

// tolerance is the per-channel mean squared distance below which two palette
// entries are merged.
func (p Params) tolerance() float64 {
	d := float64(100 - clampInt(p.MaxQuality, 0, 100))
	return d * d / 4
}

func (p Params) maxColors() int {
	if p.MaxColors <= 0 || p.MaxColors > MaxColors {
		return MaxColors
	}
	return p.MaxColors
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
