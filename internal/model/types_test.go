package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{
		InputMode: InputFolder,
		InputPath: "/frames",
		OutputDir: "/out",
		FPS:       10,
		Formats:   []Format{FormatGIF},
	}
}

func TestRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	cases := map[string]func(*Request){
		"zero fps":        func(r *Request) { r.FPS = 0 },
		"negative loop":   func(r *Request) { r.LoopCount = -1 },
		"no formats":      func(r *Request) { r.Formats = nil },
		"unknown format":  func(r *Request) { r.Formats = []Format{"avif"} },
		"quality too big": func(r *Request) { r.Compression = Compression{Kind: CompressLocal, Quality: 101} },
		"no credential":   func(r *Request) { r.Compression = Compression{Kind: CompressRemote} },
		"bad input mode":  func(r *Request) { r.InputMode = "stdin" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInput)
		})
	}
}

func TestFormatExt(t *testing.T) {
	assert.Equal(t, ".gif", FormatGIF.Ext())
	assert.Equal(t, ".webp", FormatWebP.Ext())
	assert.Equal(t, ".png", FormatAPNG.Ext())

	f, err := ParseFormat(" PNG ")
	require.NoError(t, err)
	assert.Equal(t, FormatAPNG, f)
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrEmptyInput, ErrInput)
	assert.ErrorIs(t, ErrMixedExtensions, ErrInput)

	enc := EncodeError(FormatGIF, errors.New("lzw: boom"))
	assert.ErrorIs(t, enc, ErrEncodeFailure)
	assert.Contains(t, enc.Error(), "gif")

	cancelled := EncodeError(FormatGIF, fmt.Errorf("frame 3: %w", ErrCancelled))
	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.NotErrorIs(t, cancelled, ErrEncodeFailure)
	assert.False(t, IsRecoverable(cancelled))
	assert.True(t, IsRecoverable(ErrToolUnavailable))

	assert.ErrorIs(t, CompressionError(errors.New("http 401")), ErrCompressionFailure)
}
