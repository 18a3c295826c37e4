// Package pipeline drives one conversion request end to end: scan, encode
// every requested format with the external tools or the in-process
// fallback, post-compress, and collect one result per format.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"framecast/internal/compress"
	"framecast/internal/config"
	"framecast/internal/control"
	"framecast/internal/external"
	"framecast/internal/fallback"
	xlog "framecast/internal/log"
	"framecast/internal/metrics"
	"framecast/internal/model"
	"framecast/internal/progress"
	"framecast/internal/scanner"
)

type ExternalEncoder interface {
	Encode(ctx context.Context, job external.Job, state *control.State, sink progress.Sink) error
}

type FallbackEncoder interface {
	Encode(ctx context.Context, job fallback.Job, state *control.State, sink progress.Sink) error
}

type Converter struct {
	external  ExternalEncoder
	fallback  FallbackEncoder
	remote    compress.RemoteOptions
	pausePoll time.Duration
	logger    zerolog.Logger
}

type Option func(*Converter)

// WithExternal replaces the external adapter; nil disables it.
func WithExternal(e ExternalEncoder) Option {
	return func(c *Converter) { c.external = e }
}

func WithFallback(f FallbackEncoder) Option {
	return func(c *Converter) { c.fallback = f }
}

func WithRemote(opts compress.RemoteOptions) Option {
	return func(c *Converter) { c.remote = opts }
}

// New wires the encoders described by cfg.
func New(cfg config.Config, opts ...Option) *Converter {
	c := &Converter{
		fallback: fallback.New(fallback.Options{
			Quantizer:        cfg.Quantizer,
			ProgressInterval: cfg.ProgressInterval,
		}),
		remote: compress.RemoteOptions{
			Endpoint: cfg.RemoteEndpoint,
			Timeout:  cfg.RemoteTimeout,
		},
		pausePoll: cfg.PausePoll,
		logger:    xlog.WithComponent("pipeline"),
	}
	if !cfg.DisableExternal {
		c.external = external.New(external.NewLocator(cfg), external.Options{
			TempDir:          cfg.TempDir,
			SupervisorPoll:   cfg.SupervisorPoll,
			ProgressInterval: cfg.ProgressInterval,
		})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert runs req. Input errors abort the request with no results; every
// other failure is recorded in the result of the format it hit, and the
// remaining formats still run. A nil state gets a private one.
func (c *Converter) Convert(ctx context.Context, req model.Request, state *control.State, sink progress.Sink) ([]model.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		state = control.New(c.pausePoll)
	}
	state.Reset()

	logger := c.logger.With().Str(xlog.FieldRequestID, uuid.NewString()).Logger()

	set, err := scanner.Scan(req.InputMode, req.InputPath, req.InputPaths)
	if err != nil {
		logger.Warn().Err(err).Msg("scan failed")
		return nil, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %v", model.ErrInput, err)
	}

	base := BaseName(req, set)
	logger.Info().
		Int(xlog.FieldFrames, set.Len()).
		Bool("uniform", set.Uniform).
		Str("base", base).
		Msg("conversion started")

	results := make([]model.Result, 0, len(req.Formats))
	for _, format := range req.Formats {
		out := filepath.Join(req.OutputDir, base+format.Ext())
		flog := logger.With().Str(xlog.FieldFormat, string(format)).Logger()
		res := c.convertFormat(ctx, req, set, format, out, state, sink, flog)
		results = append(results, res)
	}
	return results, nil
}

func (c *Converter) convertFormat(ctx context.Context, req model.Request, set model.FrameSet, format model.Format, out string, state *control.State, sink progress.Sink, logger zerolog.Logger) model.Result {
	res := model.Result{Format: format, Path: out}

	progress.Emit(sink, progress.Event{
		Phase:  fmt.Sprintf("Starting %s conversion", strings.ToUpper(string(format))),
		Total:  set.Len(),
		Format: format,
	})

	err := c.encode(ctx, req, set, format, out, state, sink, logger)
	if err != nil {
		res.Error = err.Error()
		outcome := "failed"
		if errors.Is(err, model.ErrCancelled) {
			outcome = "cancelled"
		}
		metrics.IncConversion(string(format), outcome)
		logger.Warn().Err(err).Msg("conversion " + outcome)
		return res
	}

	res.Success = true
	if info, err := os.Stat(out); err == nil {
		res.OriginalSize = info.Size()
	}
	res.CompressedSize = res.OriginalSize

	if comp := compress.For(req.Compression, c.remote); comp != nil {
		c.compress(ctx, comp, &res, sink, logger)
	}

	metrics.IncConversion(string(format), "success")
	logger.Info().Str(xlog.FieldPath, out).Int64("bytes", res.CompressedSize).Msg("conversion complete")
	return res
}

// encode walks Start -> TryExternal -> TryFallback. Cancellation ends the
// walk; any other external failure falls through to the fallback encoder.
func (c *Converter) encode(ctx context.Context, req model.Request, set model.FrameSet, format model.Format, out string, state *control.State, sink progress.Sink, logger zerolog.Logger) error {
	quality, lossy := req.Compression.LossyQuality()

	switch {
	case c.external == nil:
		metrics.IncFallback(string(format), "disabled")
	case lossy && format == model.FormatAPNG:
		// The palette engine has to see the pixels.
		metrics.IncFallback(string(format), "lossy")
	default:
		err := c.external.Encode(ctx, external.Job{
			Frames: set,
			Format: format,
			Output: out,
			FPS:    req.FPS,
			Loop:   req.LoopCount,
		}, state, sink)
		if err == nil {
			return nil
		}
		if !model.IsRecoverable(err) {
			return err
		}
		reason := fallbackReason(err)
		metrics.IncFallback(string(format), reason)
		logger.Info().Err(err).Str("reason", reason).Msg("external encode failed, using fallback")
	}

	return c.fallback.Encode(ctx, fallback.Job{
		Frames:  set,
		Format:  format,
		Output:  out,
		FPS:     req.FPS,
		Loop:    req.LoopCount,
		Lossy:   lossy,
		Quality: quality,
	}, state, sink)
}

func (c *Converter) compress(ctx context.Context, comp compress.Compressor, res *model.Result, sink progress.Sink, logger zerolog.Logger) {
	progress.Emit(sink, progress.Event{Phase: "Compressing output", Percent: 100, Format: res.Format, File: res.Path})

	stats, err := comp.Compress(ctx, res.Format, res.Path)
	if err != nil {
		res.Error = err.Error()
		logger.Warn().Err(err).Msg("compression failed, keeping output")
	} else {
		res.OriginalSize = stats.Original
		res.CompressedSize = stats.Compressed
	}

	progress.Emit(sink, progress.Event{Phase: "Compression complete", Percent: 100, Format: res.Format, File: res.Path})
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, model.ErrToolUnavailable):
		return "tool_unavailable"
	case errors.Is(err, model.ErrMixedExtensions):
		return "mixed_extensions"
	case errors.Is(err, model.ErrEncodeFailure):
		return "encode_failure"
	default:
		return "other"
	}
}

// BaseName is the output file stem: the requested name, or the input folder
// (first frame's stem in file mode) suffixed with the canvas size.
func BaseName(req model.Request, set model.FrameSet) string {
	if name := strings.TrimSpace(req.OutputName); name != "" {
		return name
	}
	var stem string
	switch req.InputMode {
	case model.InputFolder:
		stem = filepath.Base(filepath.Clean(req.InputPath))
	default:
		first := filepath.Base(set.Frames[0].Path)
		stem = strings.TrimSuffix(first, filepath.Ext(first))
	}
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "output"
	}
	return fmt.Sprintf("%s_%dx%d", stem, set.Width, set.Height)
}
