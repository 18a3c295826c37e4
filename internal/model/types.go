package model

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatAPNG Format = "apng"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gif":
		return FormatGIF, nil
	case "webp":
		return FormatWebP, nil
	case "apng", "png":
		return FormatAPNG, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", ErrInput, s)
	}
}

// Ext returns the output file extension including the dot. APNG files keep
// the plain .png extension so viewers without APNG support still show frame 0.
func (f Format) Ext() string {
	switch f {
	case FormatAPNG:
		return ".png"
	default:
		return "." + string(f)
	}
}

type InputMode string

const (
	InputFolder InputMode = "folder"
	InputFiles  InputMode = "files"
)

type FrameInfo struct {
	Path        string
	Width       int
	Height      int
	Size        int64
	Orientation int
}

type FrameSet struct {
	Frames  []FrameInfo
	Uniform bool
	Width   int
	Height  int
}

func (fs FrameSet) Len() int {
	return len(fs.Frames)
}

func (fs FrameSet) Paths() []string {
	paths := make([]string, len(fs.Frames))
	for i, f := range fs.Frames {
		paths[i] = f.Path
	}
	return paths
}

func (fs FrameSet) TotalBytes() int64 {
	var total int64
	for _, f := range fs.Frames {
		total += f.Size
	}
	return total
}

type CompressionKind int

const (
	CompressNone CompressionKind = iota
	CompressLocal
	CompressRemote
)

func (k CompressionKind) String() string {
	switch k {
	case CompressLocal:
		return "local"
	case CompressRemote:
		return "remote"
	default:
		return "none"
	}
}

type Compression struct {
	Kind       CompressionKind
	Quality    int
	Credential string
}

// LossyQuality reports the quality to quantize with when local lossy
// compression was requested.
func (c Compression) LossyQuality() (int, bool) {
	if c.Kind != CompressLocal {
		return 0, false
	}
	return c.Quality, true
}

type Request struct {
	InputMode   InputMode
	InputPath   string
	InputPaths  []string
	OutputDir   string
	OutputName  string
	FPS         float64
	LoopCount   int
	Formats     []Format
	Compression Compression
}

func (r Request) Validate() error {
	if r.FPS <= 0 {
		return fmt.Errorf("%w: frame rate must be positive, got %v", ErrInput, r.FPS)
	}
	if r.LoopCount < 0 {
		return fmt.Errorf("%w: loop count must not be negative", ErrInput)
	}
	if len(r.Formats) == 0 {
		return fmt.Errorf("%w: no output formats requested", ErrInput)
	}
	for _, f := range r.Formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return err
		}
	}
	switch r.Compression.Kind {
	case CompressLocal:
		if r.Compression.Quality < 0 || r.Compression.Quality > 100 {
			return fmt.Errorf("%w: quality must be within [0,100], got %d", ErrInput, r.Compression.Quality)
		}
	case CompressRemote:
		if r.Compression.Credential == "" {
			return fmt.Errorf("%w: remote compression needs a credential", ErrInput)
		}
	}
	if r.InputMode != InputFolder && r.InputMode != InputFiles {
		return fmt.Errorf("%w: unknown input mode %q", ErrInput, r.InputMode)
	}
	return nil
}

type Result struct {
	Format         Format
	Path           string
	Success        bool
	Error          string
	OriginalSize   int64
	CompressedSize int64
}
