// Package apngw streams animated PNG files frame by frame.
//
// Frames are full-canvas, non-blended and never disposed, so each frame is a
// complete picture. Truecolor frames use the adaptive per-row filter; indexed
// frames are stored unfiltered.
package apngw

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

var (
	ErrClosed     = errors.New("apngw: writer closed")
	ErrFrameCount = errors.New("apngw: frame count mismatch")
)

const (
	colorTypeIndexed = 3
	colorTypeRGBA    = 6
)

type Options struct {
	Width  int
	Height int
	// Frames is written into acTL up front; Close fails when a different
	// number of frames was written.
	Frames int
	// Plays is the loop count; 0 means forever.
	Plays    int
	DelayNum uint16
	DelayDen uint16
	// Palette switches the writer to indexed mode. Entries with alpha < 255
	// produce a tRNS chunk.
	Palette color.Palette
	// Level is a zlib compression level; 0 selects the default.
	Level int
}

// Delay converts a frame rate into an fcTL delay fraction.
func Delay(fps float64) (num, den uint16) {
	if fps <= 0 {
		return 1, 10
	}
	if fps == math.Trunc(fps) && fps <= math.MaxUint16 {
		return 1, uint16(fps)
	}
	ms := math.Round(1000 / fps)
	return uint16(min(max(ms, 1), math.MaxUint16)), 1000
}

type Writer struct {
	w      *bufio.Writer
	opts   Options
	bpp    int
	stride int
	seq    uint32
	frames int
	closed bool
	err    error

	filter *rowFilter
	prev   []byte
	zbuf   bytes.Buffer
}

// NewWriter writes the signature and the header chunks.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("apngw: invalid canvas %dx%d", opts.Width, opts.Height)
	}
	if opts.Frames <= 0 {
		return nil, fmt.Errorf("apngw: frame count %d", opts.Frames)
	}
	if len(opts.Palette) > 256 {
		return nil, fmt.Errorf("apngw: palette has %d entries", len(opts.Palette))
	}
	if opts.DelayDen == 0 {
		opts.DelayNum, opts.DelayDen = 1, 10
	}
	if opts.Level == 0 {
		opts.Level = zlib.DefaultCompression
	}

	aw := &Writer{w: bufio.NewWriter(w), opts: opts, bpp: 4}
	colorType := byte(colorTypeRGBA)
	if len(opts.Palette) > 0 {
		aw.bpp = 1
		colorType = colorTypeIndexed
	}
	aw.stride = opts.Width * aw.bpp
	aw.prev = make([]byte, aw.stride)
	aw.filter = newRowFilter(aw.stride, aw.bpp)

	if _, err := aw.w.WriteString(Signature); err != nil {
		return nil, err
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(opts.Width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(opts.Height))
	ihdr[8] = 8
	ihdr[9] = colorType
	aw.chunk("IHDR", ihdr)

	actl := make([]byte, 8)
	binary.BigEndian.PutUint32(actl[0:], uint32(opts.Frames))
	binary.BigEndian.PutUint32(actl[4:], uint32(max(opts.Plays, 0)))
	aw.chunk("acTL", actl)

	if len(opts.Palette) > 0 {
		plte := make([]byte, 0, 3*len(opts.Palette))
		trns := make([]byte, 0, len(opts.Palette))
		lastAlpha := -1
		for i, c := range opts.Palette {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			plte = append(plte, n.R, n.G, n.B)
			trns = append(trns, n.A)
			if n.A != 0xff {
				lastAlpha = i
			}
		}
		aw.chunk("PLTE", plte)
		if lastAlpha >= 0 {
			aw.chunk("tRNS", trns[:lastAlpha+1])
		}
	}

	return aw, aw.err
}

// WriteFrame appends one frame given as raw rows: 4 bytes per pixel RGBA in
// truecolor mode, one palette index per pixel in indexed mode.
func (aw *Writer) WriteFrame(pix []byte) error {
	if aw.closed {
		return ErrClosed
	}
	if aw.err != nil {
		return aw.err
	}
	if aw.frames >= aw.opts.Frames {
		return fmt.Errorf("%w: more than %d frames", ErrFrameCount, aw.opts.Frames)
	}
	if len(pix) != aw.stride*aw.opts.Height {
		return fmt.Errorf("apngw: frame has %d bytes, want %d", len(pix), aw.stride*aw.opts.Height)
	}

	aw.chunk("fcTL", aw.frameControl())

	data, err := aw.deflate(pix)
	if err != nil {
		aw.err = err
		return err
	}
	if aw.frames == 0 {
		aw.chunk("IDAT", data)
	} else {
		fdat := make([]byte, 4+len(data))
		binary.BigEndian.PutUint32(fdat, aw.nextSeq())
		copy(fdat[4:], data)
		aw.chunk("fdAT", fdat)
	}
	if aw.err == nil {
		aw.frames++
	}
	return aw.err
}

func (aw *Writer) Frames() int { return aw.frames }

// Close writes IEND and flushes. It fails with ErrFrameCount when fewer
// frames than announced were written.
func (aw *Writer) Close() error {
	if aw.closed {
		return nil
	}
	aw.closed = true
	if aw.err != nil {
		return aw.err
	}
	if aw.frames != aw.opts.Frames {
		return fmt.Errorf("%w: wrote %d of %d", ErrFrameCount, aw.frames, aw.opts.Frames)
	}
	aw.chunk("IEND", nil)
	if aw.err != nil {
		return aw.err
	}
	return aw.w.Flush()
}

func (aw *Writer) frameControl() []byte {
	b := make([]byte, 26)
	binary.BigEndian.PutUint32(b[0:], aw.nextSeq())
	binary.BigEndian.PutUint32(b[4:], uint32(aw.opts.Width))
	binary.BigEndian.PutUint32(b[8:], uint32(aw.opts.Height))
	// x and y offsets stay zero.
	binary.BigEndian.PutUint16(b[20:], aw.opts.DelayNum)
	binary.BigEndian.PutUint16(b[22:], aw.opts.DelayDen)
	// dispose_op none, blend_op source.
	return b
}

func (aw *Writer) deflate(pix []byte) ([]byte, error) {
	aw.zbuf.Reset()
	zw, err := zlib.NewWriterLevel(&aw.zbuf, aw.opts.Level)
	if err != nil {
		return nil, err
	}
	clear(aw.prev)
	raw := make([]byte, aw.stride+1)
	for y := 0; y < aw.opts.Height; y++ {
		row := pix[y*aw.stride : (y+1)*aw.stride]
		var out []byte
		if aw.bpp == 1 {
			raw[0] = filterNone
			copy(raw[1:], row)
			out = raw
		} else {
			out = aw.filter.apply(row, aw.prev)
			copy(aw.prev, row)
		}
		if _, err := zw.Write(out); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return bytes.Clone(aw.zbuf.Bytes()), nil
}

func (aw *Writer) nextSeq() uint32 {
	s := aw.seq
	aw.seq++
	return s
}

func (aw *Writer) chunk(typ string, data []byte) {
	if aw.err != nil {
		return
	}
	aw.err = WriteChunk(aw.w, typ, data)
}
