// Package compress post-processes a finished output file. A failed pass
// never removes the output; callers record the error next to a successful
// result.
package compress

import (
	"context"
	"fmt"
	"os"

	"framecast/internal/model"
)

// Stats reports file sizes before and after a pass. They are equal when the
// pass left the file alone.
type Stats struct {
	Original   int64
	Compressed int64
}

func (s Stats) Saved() int64 {
	return s.Original - s.Compressed
}

type Compressor interface {
	Compress(ctx context.Context, format model.Format, path string) (Stats, error)
}

// For returns the compressor for a request's compression mode, or nil for
// CompressNone.
func For(c model.Compression, remote RemoteOptions) Compressor {
	switch c.Kind {
	case model.CompressLocal:
		return NewLocal()
	case model.CompressRemote:
		remote.Credential = c.Credential
		return NewRemote(remote)
	default:
		return nil
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, model.CompressionError(fmt.Errorf("stat output: %w", err))
	}
	return info.Size(), nil
}
