package webpmux

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type chunk struct {
	typ  string
	data []byte
}

// parseChunks lists the top-level chunks of a WebP file. Odd-sized chunks
// without their pad byte at the end of the file are tolerated.
func parseChunks(b []byte) ([]chunk, error) {
	if len(b) < 12 || string(b[:4]) != "RIFF" || string(b[8:12]) != "WEBP" {
		return nil, ErrNotWebP
	}
	var out []chunk
	off := 12
	for off+8 <= len(b) {
		typ := string(b[off : off+4])
		n := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		start := off + 8
		if n < 0 || start+n > len(b) {
			return nil, fmt.Errorf("%w: chunk %q overruns file", ErrNotWebP, typ)
		}
		out = append(out, chunk{typ: typ, data: b[start : start+n]})
		off = start + n + n&1
	}
	return out, nil
}

// writeChunk appends a chunk and its pad byte.
func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	buf.WriteString(typ)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.Write(data)
	if len(data)&1 == 1 {
		buf.WriteByte(0)
	}
}

func put24(b []byte, v uint32) {
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}

func get24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

func vp8lHeader(d []byte) (w, h int, alpha bool, err error) {
	if len(d) < 5 || d[0] != 0x2f {
		return 0, 0, false, fmt.Errorf("%w: bad VP8L header", ErrNotWebP)
	}
	bits := binary.LittleEndian.Uint32(d[1:5])
	w = int(bits&0x3fff) + 1
	h = int(bits>>14&0x3fff) + 1
	alpha = bits>>28&1 == 1
	return w, h, alpha, nil
}

func vp8Header(d []byte) (w, h int, err error) {
	if len(d) < 10 || d[3] != 0x9d || d[4] != 0x01 || d[5] != 0x2a {
		return 0, 0, fmt.Errorf("%w: bad VP8 header", ErrNotWebP)
	}
	w = int(binary.LittleEndian.Uint16(d[6:8]) & 0x3fff)
	h = int(binary.LittleEndian.Uint16(d[8:10]) & 0x3fff)
	return w, h, nil
}
