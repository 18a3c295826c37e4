package compress

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zlib"

	"framecast/internal/codec/apngw"
	"framecast/internal/metrics"
	"framecast/internal/model"
)

// Local re-optimises PNG and APNG outputs losslessly: every frame's image
// data is re-deflated at the strongest level, metadata chunks are dropped,
// and the file is replaced only when that makes it smaller. GIF and WebP pass through unchanged.
type Local struct {
	level int
}

func NewLocal() *Local {
	return &Local{level: zlib.BestCompression}
}

func (l *Local) Compress(ctx context.Context, format model.Format, path string) (Stats, error) {
	size, err := fileSize(path)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Original: size, Compressed: size}
	if format != model.FormatAPNG {
		return stats, nil
	}
	if err := ctx.Err(); err != nil {
		return stats, model.ErrCancelled
	}

	f, err := os.Open(path)
	if err != nil {
		return stats, model.CompressionError(err)
	}
	chunks, err := apngw.ReadChunks(f)
	f.Close()
	if err != nil {
		return stats, model.CompressionError(err)
	}

	var buf bytes.Buffer
	if err := l.rewrite(&buf, chunks); err != nil {
		return stats, model.CompressionError(err)
	}
	if int64(buf.Len()) >= size {
		return stats, nil
	}

	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return stats, model.CompressionError(fmt.Errorf("replace output: %w", err))
	}
	stats.Compressed = int64(buf.Len())
	metrics.AddBytesSaved(model.CompressLocal.String(), stats.Saved())
	return stats, nil
}

// rewrite copies chunks to w, merging each run of IDAT or fdAT chunks into a
// single re-deflated chunk and renumbering the animation sequence. Textual,
// timestamp and EXIF chunks are dropped.
func (l *Local) rewrite(w io.Writer, chunks []apngw.Chunk) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(apngw.Signature); err != nil {
		return err
	}

	var seq uint32
	for i := 0; i < len(chunks); {
		c := chunks[i]
		switch c.Type {
		case "IDAT", "fdAT":
			var stream bytes.Buffer
			j := i
			for ; j < len(chunks) && chunks[j].Type == c.Type; j++ {
				data := chunks[j].Data
				if c.Type == "fdAT" {
					if len(data) < 4 {
						return fmt.Errorf("short fdAT chunk")
					}
					data = data[4:]
				}
				stream.Write(data)
			}
			packed, err := l.redeflate(stream.Bytes())
			if err != nil {
				return err
			}
			if c.Type == "fdAT" {
				packed = append(binary.BigEndian.AppendUint32(nil, seq), packed...)
				seq++
			}
			if err := apngw.WriteChunk(bw, c.Type, packed); err != nil {
				return err
			}
			i = j
			continue
		case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
			i++
			continue
		case "fcTL":
			data := bytes.Clone(c.Data)
			if len(data) < 4 {
				return fmt.Errorf("short fcTL chunk")
			}
			binary.BigEndian.PutUint32(data, seq)
			seq++
			c.Data = data
		}
		if err := apngw.WriteChunk(bw, c.Type, c.Data); err != nil {
			return err
		}
		i++
	}
	return bw.Flush()
}

func (l *Local) redeflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	raw, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}

	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, l.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
