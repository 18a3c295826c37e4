// Package webpmux assembles animated WebP files from individually encoded
// still frames. Frames are appended as they arrive; the RIFF size and the
// VP8X flags are patched on Close, so the destination must be seekable.
package webpmux

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/HugoSmits86/nativewebp"
)

var (
	ErrClosed    = errors.New("webpmux: muxer closed")
	ErrNotWebP   = errors.New("webpmux: not a WebP stream")
	ErrFrameSize = errors.New("webpmux: frame does not match canvas")
)

const (
	flagAlpha     = 0x10
	flagAnimation = 0x02

	// offset of the VP8X flags byte from the start of the file
	vp8xFlagsOffset = 20
	maxDuration     = 1<<24 - 1
)

type Options struct {
	Width  int
	Height int
	// Loop is the ANIM loop count; 0 loops forever.
	Loop int
	// Background is the ANIM background colour in BGRA byte order.
	Background uint32
}

type Muxer struct {
	w      io.WriteSeeker
	opts   Options
	size   int64
	frames int
	alpha  bool
	closed bool
}

// NewMuxer writes the RIFF header, VP8X and ANIM chunks.
func NewMuxer(w io.WriteSeeker, opts Options) (*Muxer, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Width > 1<<24 || opts.Height > 1<<24 {
		return nil, fmt.Errorf("webpmux: invalid canvas %dx%d", opts.Width, opts.Height)
	}
	m := &Muxer{w: w, opts: opts}

	var head bytes.Buffer
	head.WriteString("RIFF")
	head.Write([]byte{0, 0, 0, 0})
	head.WriteString("WEBP")

	vp8x := make([]byte, 10)
	vp8x[0] = flagAnimation
	put24(vp8x[4:], uint32(opts.Width-1))
	put24(vp8x[7:], uint32(opts.Height-1))
	writeChunk(&head, "VP8X", vp8x)

	anim := make([]byte, 6)
	binary.LittleEndian.PutUint32(anim, opts.Background)
	binary.LittleEndian.PutUint16(anim[4:], uint16(min(max(opts.Loop, 0), 0xffff)))
	writeChunk(&head, "ANIM", anim)

	if err := m.write(head.Bytes()); err != nil {
		return nil, err
	}
	return m, nil
}

// AddFrame wraps one still WebP file into an ANMF chunk shown for
// durationMS milliseconds.
func (m *Muxer) AddFrame(still []byte, durationMS int) error {
	if m.closed {
		return ErrClosed
	}
	chunks, err := parseChunks(still)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	var w, h int
	for _, c := range chunks {
		switch c.typ {
		case "ALPH":
			m.alpha = true
			writeChunk(&body, c.typ, c.data)
		case "VP8L":
			var alpha bool
			w, h, alpha, err = vp8lHeader(c.data)
			if err != nil {
				return err
			}
			m.alpha = m.alpha || alpha
			writeChunk(&body, c.typ, c.data)
		case "VP8 ":
			if w, h, err = vp8Header(c.data); err != nil {
				return err
			}
			writeChunk(&body, c.typ, c.data)
		}
	}
	if w == 0 {
		return fmt.Errorf("%w: no image data", ErrNotWebP)
	}
	if w != m.opts.Width || h != m.opts.Height {
		return fmt.Errorf("%w: %dx%d", ErrFrameSize, w, h)
	}

	hdr := make([]byte, 16)
	// x and y offsets stay zero.
	put24(hdr[6:], uint32(w-1))
	put24(hdr[9:], uint32(h-1))
	put24(hdr[12:], uint32(min(max(durationMS, 1), maxDuration)))
	// Do not blend, do not dispose.
	hdr[15] = 0x02

	var anmf bytes.Buffer
	writeChunk(&anmf, "ANMF", append(hdr, body.Bytes()...))
	if err := m.write(anmf.Bytes()); err != nil {
		return err
	}
	m.frames++
	return nil
}

// AddImage encodes img losslessly and appends it.
func (m *Muxer) AddImage(img image.Image, durationMS int) error {
	still, err := EncodeStill(img)
	if err != nil {
		return err
	}
	return m.AddFrame(still, durationMS)
}

func (m *Muxer) Frames() int { return m.frames }

// Close patches the RIFF size and the alpha flag. The muxer leaves the
// writer positioned at its end.
func (m *Muxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.frames == 0 {
		return fmt.Errorf("webpmux: no frames written")
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(m.size-8))
	if err := m.patch(4, size[:]); err != nil {
		return err
	}
	if m.alpha {
		if err := m.patch(vp8xFlagsOffset, []byte{flagAnimation | flagAlpha}); err != nil {
			return err
		}
	}
	_, err := m.w.Seek(m.size, io.SeekStart)
	return err
}

func (m *Muxer) write(p []byte) error {
	n, err := m.w.Write(p)
	m.size += int64(n)
	if err != nil {
		return err
	}
	if m.size > 1<<32-1 {
		return errors.New("webpmux: output exceeds RIFF size limit")
	}
	return nil
}

func (m *Muxer) patch(off int64, p []byte) error {
	if _, err := m.w.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := m.w.Write(p)
	return err
}

// EncodeStill encodes img as a lossless single-frame WebP.
func EncodeStill(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteStill writes img as a lossless single-frame WebP.
func WriteStill(w io.Writer, img image.Image) error {
	return nativewebp.Encode(w, img, nil)
}
