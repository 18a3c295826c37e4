package quant

import (
	"image"
	"image/color"
	"sort"

	"github.com/ericpauley/go-quantize/quantize"
)

// Palette is a reusable colour table built from one frame. Remapping many
// frames through the same palette keeps colours stable across an animation.
type Palette struct {
	colors []color.NRGBA
	params Params
}

// BuildPalette derives a colour table for f. A median cut over the visible
// pixels picks the colours, each entry takes the mean alpha of the pixels
// nearest to it, and entries closer than the quality tolerance are merged.
// Frames with fully transparent pixels get one transparent entry. The result
// is deterministic for a given frame and parameters.
func BuildPalette(f Frame, p Params) (*Palette, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	hasClear, visible := false, 0
	for i := 3; i < len(f.Pix); i += 4 {
		if f.Pix[i] == 0 {
			hasClear = true
		} else {
			visible++
		}
	}
	if visible == 0 {
		return &Palette{colors: []color.NRGBA{{}}, params: p}, nil
	}

	limit := p.maxColors()
	if hasClear {
		limit--
	}
	q := quantize.MedianCutQuantizer{Aggregation: quantize.Mean}
	rgb := q.Quantize(make(color.Palette, 0, limit), opaque(f))

	colors := withAlpha(f, rgb)
	colors = merge(colors, p.tolerance())
	if hasClear {
		colors = append(colors, color.NRGBA{})
	}
	// Transparent entries first, then darker before lighter.
	sort.SliceStable(colors, func(i, j int) bool {
		return order(colors[i]) < order(colors[j])
	})
	return &Palette{colors: colors, params: p}, nil
}

// opaque returns f as an image with every alpha forced to 255 so the
// quantizer sees straight colour. Fully transparent pixels repeat the colour
// of the previous visible pixel and so add no colours of their own.
func opaque(f Frame) *image.NRGBA {
	img := f.NRGBA()
	var last [3]uint8
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			copy(last[:], img.Pix[i-3:i])
			break
		}
	}
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i+3] == 0 {
			copy(img.Pix[i:i+3], last[:])
		} else {
			copy(last[:], img.Pix[i:i+3])
		}
		img.Pix[i+3] = 0xff
	}
	return img
}

// withAlpha assigns every visible pixel of f to its nearest colour in rgb and
// gives each colour the rounded mean alpha of its pixels. Colours that no
// visible pixel maps to are dropped.
func withAlpha(f Frame, rgb color.Palette) []color.NRGBA {
	type acc struct{ n, alpha int }
	members := make([]acc, len(rgb))
	table := make([]color.NRGBA, len(rgb))
	for i, c := range rgb {
		table[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
	}
	cache := make(map[uint32]int, 1024)
	for i := 0; i < len(f.Pix); i += 4 {
		a := f.Pix[i+3]
		if a == 0 {
			continue
		}
		key := uint32(f.Pix[i])<<16 | uint32(f.Pix[i+1])<<8 | uint32(f.Pix[i+2])
		idx, ok := cache[key]
		if !ok {
			idx = nearestRGB(table, f.Pix[i], f.Pix[i+1], f.Pix[i+2])
			cache[key] = idx
		}
		if idx < 0 {
			continue
		}
		members[idx].n++
		members[idx].alpha += int(a)
	}

	out := make([]color.NRGBA, 0, len(table))
	for i, c := range table {
		m := members[i]
		if m.n == 0 {
			continue
		}
		c.A = uint8((m.alpha + m.n/2) / m.n)
		out = append(out, c)
	}
	return out
}

func nearestRGB(table []color.NRGBA, r, g, b uint8) int {
	best, bestD := -1, 1<<30
	for i, c := range table {
		dr, dg, db := int(c.R)-int(r), int(c.G)-int(g), int(c.B)-int(b)
		if d := dr*dr + dg*dg + db*db; d < bestD {
			best, bestD = i, d
			if d == 0 {
				break
			}
		}
	}
	return best
}

// merge drops entries whose per-channel mean squared distance to an earlier
// kept entry is within tol. Exact duplicates are always dropped.
func merge(colors []color.NRGBA, tol float64) []color.NRGBA {
	out := make([]color.NRGBA, 0, len(colors))
	for _, c := range colors {
		dup := false
		for _, k := range out {
			dr, dg, db, da := int(c.R)-int(k.R), int(c.G)-int(k.G), int(c.B)-int(k.B), int(c.A)-int(k.A)
			d := dr*dr + dg*dg + db*db + da*da
			if d == 0 || float64(d)/4 <= tol {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func order(c color.NRGBA) uint64 {
	l := uint64(299*int(c.R) + 587*int(c.G) + 114*int(c.B))
	return uint64(c.A)<<48 | l<<24 | uint64(c.R)<<16 | uint64(c.G)<<8 | uint64(c.B)
}

func (p *Palette) Len() int { return len(p.colors) }

func (p *Palette) Params() Params { return p.params }

// Colors returns a copy of the table.
func (p *Palette) Colors() []color.NRGBA {
	return append([]color.NRGBA(nil), p.colors...)
}

// ColorPalette returns the table as an image/color palette.
func (p *Palette) ColorPalette() color.Palette {
	out := make(color.Palette, len(p.colors))
	for i, c := range p.colors {
		out[i] = c
	}
	return out
}

// TransparentIndex returns the index of a fully transparent entry.
func (p *Palette) TransparentIndex() (int, bool) {
	for i, c := range p.colors {
		if c.A == 0 {
			return i, true
		}
	}
	return -1, false
}
