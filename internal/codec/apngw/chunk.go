package apngw

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

const Signature = "\x89PNG\r\n\x1a\n"

var ErrNotPNG = errors.New("apngw: not a PNG stream")

// Chunk is one PNG chunk with its CRC already verified.
type Chunk struct {
	Type string
	Data []byte
}

// WriteChunk writes length, type, data and CRC.
func WriteChunk(w io.Writer, typ string, data []byte) error {
	if len(typ) != 4 {
		return fmt.Errorf("apngw: bad chunk type %q", typ)
	}
	var head [8]byte
	binary.BigEndian.PutUint32(head[:4], uint32(len(data)))
	copy(head[4:], typ)

	crc := crc32.NewIEEE()
	crc.Write(head[4:])
	crc.Write(data)
	var foot [4]byte
	binary.BigEndian.PutUint32(foot[:], crc.Sum32())

	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write(foot[:])
	return err
}

// ReadChunks reads a whole PNG or APNG stream up to and including IEND.
func ReadChunks(r io.Reader) ([]Chunk, error) {
	br := bufio.NewReader(r)
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(br, sig); err != nil || !bytes.Equal(sig, []byte(Signature)) {
		return nil, ErrNotPNG
	}

	var chunks []Chunk
	for {
		var head [8]byte
		if _, err := io.ReadFull(br, head[:]); err != nil {
			return nil, fmt.Errorf("apngw: truncated stream: %w", err)
		}
		n := binary.BigEndian.Uint32(head[:4])
		if n > 1<<31-1 {
			return nil, fmt.Errorf("apngw: chunk length %d too large", n)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("apngw: truncated chunk: %w", err)
		}
		var foot [4]byte
		if _, err := io.ReadFull(br, foot[:]); err != nil {
			return nil, fmt.Errorf("apngw: truncated crc: %w", err)
		}
		crc := crc32.NewIEEE()
		crc.Write(head[4:])
		crc.Write(data)
		if crc.Sum32() != binary.BigEndian.Uint32(foot[:]) {
			return nil, fmt.Errorf("apngw: crc mismatch in %s", head[4:])
		}

		c := Chunk{Type: string(head[4:]), Data: data}
		chunks = append(chunks, c)
		if c.Type == "IEND" {
			return chunks, nil
		}
	}
}
