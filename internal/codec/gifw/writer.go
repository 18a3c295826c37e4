// Package gifw writes animated GIF89a files one frame at a time, so that an
// animation never has to be held in memory.
package gifw

import (
	"bufio"
	"compress/lzw"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
)

var (
	ErrClosed    = errors.New("gifw: writer closed")
	ErrFrameSize = errors.New("gifw: frame does not match canvas")
)

type Options struct {
	Width  int
	Height int
	// Loop is the NETSCAPE2.0 repeat count; 0 loops forever.
	Loop int
	// Delay is the per-frame delay in hundredths of a second.
	Delay int
}

// DelayForFPS converts a frame rate to the GIF delay unit.
func DelayForFPS(fps float64) int {
	return max(int(math.Round(100/fps)), 1)
}

type Writer struct {
	w      *bufio.Writer
	opts   Options
	frames int
	closed bool
	err    error
}

// NewWriter writes the header, logical screen descriptor and loop extension.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Width > 0xffff || opts.Height > 0xffff {
		return nil, fmt.Errorf("gifw: invalid canvas %dx%d", opts.Width, opts.Height)
	}
	gw := &Writer{w: bufio.NewWriter(w), opts: opts}

	gw.write([]byte("GIF89a"))
	gw.uint16(opts.Width)
	gw.uint16(opts.Height)
	// No global colour table; every frame carries its own.
	gw.write([]byte{0x00, 0x00, 0x00})

	gw.write([]byte{0x21, 0xff, 0x0b})
	gw.write([]byte("NETSCAPE2.0"))
	gw.write([]byte{0x03, 0x01})
	gw.uint16(max(opts.Loop, 0))
	gw.write([]byte{0x00})

	return gw, gw.err
}

// WriteFrame appends one full-canvas frame. transparent is the palette
// index treated as transparent, or -1.
func (gw *Writer) WriteFrame(img *image.Paletted, transparent int) error {
	if gw.closed {
		return ErrClosed
	}
	if gw.err != nil {
		return gw.err
	}
	b := img.Bounds()
	if b.Dx() != gw.opts.Width || b.Dy() != gw.opts.Height {
		return fmt.Errorf("%w: %dx%d", ErrFrameSize, b.Dx(), b.Dy())
	}
	if len(img.Palette) == 0 || len(img.Palette) > 256 {
		return fmt.Errorf("gifw: palette has %d entries", len(img.Palette))
	}

	// Graphic control extension. Frames with transparency restore to the
	// background so earlier frames do not show through.
	flags := byte(1 << 2)
	trIndex := byte(0)
	if transparent >= 0 && transparent < len(img.Palette) {
		flags = 2<<2 | 0x01
		trIndex = byte(transparent)
	}
	gw.write([]byte{0x21, 0xf9, 0x04, flags})
	gw.uint16(gw.opts.Delay)
	gw.write([]byte{trIndex, 0x00})

	// Image descriptor with a local colour table.
	bits := paletteBits(len(img.Palette))
	gw.write([]byte{0x2c})
	gw.uint16(0)
	gw.uint16(0)
	gw.uint16(b.Dx())
	gw.uint16(b.Dy())
	gw.write([]byte{0x80 | byte(bits-1)})

	table := make([]byte, 3*(1<<bits))
	for i, c := range img.Palette {
		r, g, bl, _ := c.RGBA()
		table[3*i], table[3*i+1], table[3*i+2] = byte(r>>8), byte(g>>8), byte(bl>>8)
	}
	gw.write(table)

	litWidth := max(bits, 2)
	gw.write([]byte{byte(litWidth)})
	if gw.err != nil {
		return gw.err
	}

	bw := &blockWriter{w: gw.w}
	enc := lzw.NewWriter(bw, lzw.LSB, litWidth)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := enc.Write(img.Pix[off : off+b.Dx()]); err != nil {
			enc.Close()
			gw.err = err
			return err
		}
	}
	if err := enc.Close(); err != nil {
		gw.err = err
		return err
	}
	if err := bw.close(); err != nil {
		gw.err = err
		return err
	}
	gw.frames++
	return gw.err
}

func (gw *Writer) Frames() int { return gw.frames }

// Close writes the trailer and flushes. It does not close the underlying
// writer.
func (gw *Writer) Close() error {
	if gw.closed {
		return nil
	}
	gw.closed = true
	if gw.err != nil {
		return gw.err
	}
	gw.write([]byte{0x3b})
	if gw.err != nil {
		return gw.err
	}
	return gw.w.Flush()
}

func (gw *Writer) write(p []byte) {
	if gw.err != nil {
		return
	}
	_, gw.err = gw.w.Write(p)
}

func (gw *Writer) uint16(v int) {
	gw.write([]byte{byte(v), byte(v >> 8)})
}

// paletteBits is the colour table size exponent for n entries, at least 1.
func paletteBits(n int) int {
	bits := 1
	for 1<<bits < n {
		bits++
	}
	return bits
}

// blockWriter splits the LZW stream into data sub-blocks of at most 255
// bytes.
type blockWriter struct {
	w   *bufio.Writer
	buf [255]byte
	n   int
}

func (b *blockWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		c := copy(b.buf[b.n:], p)
		b.n += c
		p = p[c:]
		written += c
		if b.n == len(b.buf) {
			if err := b.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (b *blockWriter) flush() error {
	if b.n == 0 {
		return nil
	}
	if err := b.w.WriteByte(byte(b.n)); err != nil {
		return err
	}
	if _, err := b.w.Write(b.buf[:b.n]); err != nil {
		return err
	}
	b.n = 0
	return nil
}

func (b *blockWriter) close() error {
	if err := b.flush(); err != nil {
		return err
	}
	return b.w.WriteByte(0x00)
}
