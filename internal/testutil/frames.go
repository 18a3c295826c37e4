// Package testutil builds synthetic frame fixtures for package tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Gradient returns a w x h frame whose colours depend on the position and on
// seed, so consecutive frames differ.
func Gradient(w, h, seed int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x*255/max(w-1, 1) + seed*17) % 256),
				G: uint8((y*255/max(h-1, 1) + seed*31) % 256),
				B: uint8((x + y + seed*7) % 256),
				A: 0xff,
			})
		}
	}
	return img
}

func WritePNG(t *testing.T, path string, img image.Image) {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteJPEG writes a baseline JPEG; orientation > 0 adds an EXIF APP1
// segment carrying that orientation.
func WriteJPEG(t *testing.T, path string, img image.Image, orientation int) {
	t.Helper()

	var entries []exifEntry
	if orientation > 0 {
		entries = append(entries, shortEntry(0x0112, uint16(orientation)))
	}
	writeJPEG(t, path, img, entries)
}

// WriteJPEGCamera writes a JPEG whose EXIF names the camera make.
func WriteJPEGCamera(t *testing.T, path string, img image.Image, maker string) {
	t.Helper()
	writeJPEG(t, path, img, []exifEntry{asciiEntry(0x010f, maker)})
}

func writeJPEG(t *testing.T, path string, img image.Image, entries []exifEntry) {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()
	if len(entries) > 0 {
		app1 := append([]byte("Exif\x00\x00"), exifIFD(entries)...)
		var seg bytes.Buffer
		seg.Write([]byte{0xff, 0xe1})
		_ = binary.Write(&seg, binary.BigEndian, uint16(len(app1)+2))
		seg.Write(app1)

		out := append([]byte{}, data[:2]...)
		out = append(out, seg.Bytes()...)
		data = append(out, data[2:]...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type exifEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func shortEntry(tag, v uint16) exifEntry {
	return exifEntry{tag: tag, typ: 3, count: 1, value: binary.LittleEndian.AppendUint16(nil, v)}
}

func asciiEntry(tag uint16, s string) exifEntry {
	v := append([]byte(s), 0)
	return exifEntry{tag: tag, typ: 2, count: uint32(len(v)), value: v}
}

// exifIFD lays out a little-endian TIFF header and a single IFD0. Values
// longer than four bytes go to a data area after the IFD.
func exifIFD(entries []exifEntry) []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(len(entries)))

	dataOff := uint32(8 + 2 + 12*len(entries) + 4)
	var data bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&tiff, binary.LittleEndian, e.tag)
		_ = binary.Write(&tiff, binary.LittleEndian, e.typ)
		_ = binary.Write(&tiff, binary.LittleEndian, e.count)
		if len(e.value) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.value)
			tiff.Write(inline)
			continue
		}
		_ = binary.Write(&tiff, binary.LittleEndian, dataOff+uint32(data.Len()))
		data.Write(e.value)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))
	tiff.Write(data.Bytes())
	return tiff.Bytes()
}

// WriteSequence writes n PNG frames named frame_001.png ... into dir and
// returns their paths in order.
func WriteSequence(t *testing.T, dir string, n, w, h int) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		paths[i] = filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i+1))
		WritePNG(t, paths[i], Gradient(w, h, i))
	}
	return paths
}
