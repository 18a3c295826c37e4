package quant

import (
	"image"
	"image/color"
)

// ditherSpread is the colour distance covered by the threshold matrix at
// strength 1.
const ditherSpread = 32.0

// Indexed is a frame expressed as palette indices, one byte per pixel.
type Indexed struct {
	Width  int
	Height int
	Pix    []uint8
}

// Remap maps every pixel of f to its nearest palette entry after an ordered
// dither offset on the colour channels. Alpha is matched but never dithered.
// Remapping the same frame twice yields identical output.
func (p *Palette) Remap(f Frame) (Indexed, error) {
	if err := f.validate(); err != nil {
		return Indexed{}, err
	}

	out := Indexed{Width: f.Width, Height: f.Height, Pix: make([]uint8, f.Width*f.Height)}
	cache := make(map[uint32]uint8, 1024)
	strength := clampFloat(p.params.Dither, 0, 1)

	for y := 0; y < f.Height; y++ {
		row := thresholdMatrix[y%8]
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 4
			r, g, b, a := int(f.Pix[i]), int(f.Pix[i+1]), int(f.Pix[i+2]), f.Pix[i+3]
			if strength > 0 {
				off := int((float64(row[x%8]) - 31.5) / 64 * ditherSpread * strength)
				r, g, b = r+off, g+off, b+off
			}
			c := color.NRGBA{R: clampByte(r), G: clampByte(g), B: clampByte(b), A: a}
			key := uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
			idx, ok := cache[key]
			if !ok {
				idx = p.nearest(c)
				cache[key] = idx
			}
			out.Pix[y*f.Width+x] = idx
		}
	}
	return out, nil
}

// RemapRGBA remaps f and expands the indices back to RGBA.
func (p *Palette) RemapRGBA(f Frame) (Frame, error) {
	idx, err := p.Remap(f)
	if err != nil {
		return Frame{}, err
	}
	return p.Expand(idx), nil
}

func (p *Palette) Expand(idx Indexed) Frame {
	out := Frame{Width: idx.Width, Height: idx.Height, Pix: make([]uint8, 4*len(idx.Pix))}
	for i, v := range idx.Pix {
		c := p.colors[v]
		out.Pix[4*i], out.Pix[4*i+1], out.Pix[4*i+2], out.Pix[4*i+3] = c.R, c.G, c.B, c.A
	}
	return out
}

// Paletted returns idx as an image using this palette.
func (p *Palette) Paletted(idx Indexed) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, idx.Width, idx.Height), p.ColorPalette())
	copy(img.Pix, idx.Pix)
	return img
}

func (p *Palette) nearest(c color.NRGBA) uint8 {
	best, bestDist := 0, -1
	for i, e := range p.colors {
		dr := int(c.R) - int(e.R)
		dg := int(c.G) - int(e.G)
		db := int(c.B) - int(e.B)
		da := int(c.A) - int(e.A)
		// Alpha mismatches are more visible than colour ones.
		d := dr*dr + dg*dg + db*db + 2*da*da
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	return uint8(best)
}

// Quantize builds a palette from f and remaps f through it.
func Quantize(f Frame, quality int) (Frame, *Palette, error) {
	p, err := BuildPalette(f, ParamsForQuality(quality))
	if err != nil {
		return Frame{}, nil, err
	}
	out, err := p.RemapRGBA(f)
	if err != nil {
		return Frame{}, nil, err
	}
	return out, p, nil
}
