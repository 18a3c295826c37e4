package imgutil

import (
	"bufio"
	"fmt"
	"image"
	"image/draw"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DecodeConfig reads only the header of an image file.
func DecodeConfig(path string) (image.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode header %s: %w", path, err)
	}
	return cfg, format, nil
}

// DecodeFile decodes the first image in path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// ToCanvas returns a fresh NRGBA image of exactly w x h with origin at 0,0.
// Frames of another size are scaled with Catmull-Rom.
func ToCanvas(img image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// LoadCanvas decodes path and normalises it onto a w x h canvas.
func LoadCanvas(path string, w, h int) (*image.NRGBA, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return ToCanvas(img, w, h), nil
}
