package quant

// BitsForQuality maps a 0..100 quality to the per-channel bit depth used by
// the bit-depth fallback.
func BitsForQuality(q int) int {
	switch {
	case q >= 90:
		return 8
	case q >= 75:
		return 7
	case q >= 60:
		return 6
	case q >= 15:
		return 5
	default:
		return 4
	}
}

// DitherEnabled reports whether ordered dithering is worth applying at bits.
func DitherEnabled(bits int) bool {
	return bits <= 5
}

func DitherStrength(bits int) float64 {
	switch bits {
	case 3:
		return 0.45
	case 4:
		return 0.6
	case 5:
		return 0.75
	default:
		return 1.0
	}
}

// ReduceBitDepth truncates the colour channels of f to bits per channel,
// optionally perturbing each decision with the threshold matrix. Alpha is
// copied unchanged and bits >= 8 returns an identical copy.
func ReduceBitDepth(f Frame, bits int, strength float64, dither bool) (Frame, error) {
	if err := f.validate(); err != nil {
		return Frame{}, err
	}
	out := f.Clone()
	if bits >= 8 {
		return out, nil
	}
	bits = max(bits, 1)
	shift := uint(8 - bits)
	step := float64(int(1) << shift)

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 4
			jitter := 0
			if dither {
				n := thresholdMatrix[y%8][x%8] - 31
				jitter = int(float64(n) * step / 64 * strength)
			}
			for ch := 0; ch < 3; ch++ {
				v := clampByte(int(f.Pix[i+ch]) + jitter)
				out.Pix[i+ch] = (v >> shift) << shift
			}
		}
	}
	return out, nil
}

// ReduceForQuality applies the bit-depth fallback with the parameters
// derived from quality.
func ReduceForQuality(f Frame, quality int) (Frame, error) {
	bits := BitsForQuality(quality)
	return ReduceBitDepth(f, bits, DitherStrength(bits), DitherEnabled(bits))
}
