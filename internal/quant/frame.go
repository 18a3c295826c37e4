// Package quant reduces frames to bounded palettes for the lossy encoders.
// Every operation takes frames by value and returns new buffers; inputs are
// never modified.
package quant

import (
	"errors"
	"fmt"
	"image"
)

var ErrInvalidFrame = errors.New("invalid frame buffer")

// Frame is a non-premultiplied RGBA pixel buffer with a stride of 4*Width.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// FromNRGBA copies img into a Frame.
func FromNRGBA(img *image.NRGBA) Frame {
	b := img.Bounds()
	f := Frame{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint8, 4*b.Dx()*b.Dy())}
	for y := 0; y < f.Height; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(f.Pix[y*4*f.Width:(y+1)*4*f.Width], row[:4*f.Width])
	}
	return f
}

// NRGBA returns a copy of the frame as an image.
func (f Frame) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	return img
}

func (f Frame) Clone() Frame {
	out := f
	out.Pix = append([]uint8(nil), f.Pix...)
	return out
}

func (f Frame) validate() error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != 4*f.Width*f.Height {
		return fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidFrame, f.Width, f.Height, len(f.Pix))
	}
	return nil
}

// thresholdMatrix is the 8x8 blue-noise ordered dithering matrix, values
// 0..63.
var thresholdMatrix = [8][8]int{
	{0, 48, 12, 60, 3, 51, 15, 63},
	{32, 16, 44, 28, 35, 19, 47, 31},
	{8, 56, 4, 52, 11, 59, 7, 55},
	{40, 24, 36, 20, 43, 27, 39, 23},
	{2, 50, 14, 62, 1, 49, 13, 61},
	{34, 18, 46, 30, 33, 17, 45, 29},
	{10, 58, 6, 54, 9, 57, 5, 53},
	{42, 26, 38, 22, 41, 25, 37, 21},
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
