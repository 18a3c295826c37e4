// Package fallback holds the pure in-process encoders used when the external
// tools are missing or fail. Each encoder streams frames: only the frame
// being encoded is decoded at any time.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"framecast/internal/config"
	"framecast/internal/control"
	xlog "framecast/internal/log"
	"framecast/internal/metrics"
	"framecast/internal/model"
	"framecast/internal/progress"
	"framecast/pkg/imgutil"
)

const encoderName = "native"

type Options struct {
	// Quantizer selects the lossy APNG path: config.QuantizerPalette or
	// config.QuantizerBitDepth.
	Quantizer        string
	ProgressInterval time.Duration
}

type Encoder struct {
	opts   Options
	logger zerolog.Logger
}

func New(opts Options) *Encoder {
	if opts.Quantizer == "" {
		opts.Quantizer = config.QuantizerPalette
	}
	return &Encoder{opts: opts, logger: xlog.WithComponent("fallback")}
}

type Job struct {
	Frames model.FrameSet
	Format model.Format
	Output string
	FPS    float64
	Loop   int
	// Quality enables lossy encoding when Lossy is set.
	Lossy   bool
	Quality int
}

// Encode writes job.Output. The destination only appears once every frame
// was written; on failure or cancellation nothing is left behind.
func (e *Encoder) Encode(ctx context.Context, job Job, state *control.State, sink progress.Sink) error {
	if job.Frames.Len() == 0 {
		return model.ErrEmptyInput
	}
	if job.FPS <= 0 {
		return fmt.Errorf("%w: frame rate must be positive", model.ErrInput)
	}

	logger := e.logger.With().Str(xlog.FieldFormat, string(job.Format)).Str(xlog.FieldEncoder, encoderName).Logger()
	start := time.Now()

	var err error
	switch job.Format {
	case model.FormatGIF:
		err = e.encodeGIF(ctx, job, state, sink)
	case model.FormatAPNG:
		err = e.encodeAPNG(ctx, job, state, sink, logger)
	case model.FormatWebP:
		err = e.encodeWebP(ctx, job, state, sink, logger)
	default:
		err = fmt.Errorf("unsupported format %q", job.Format)
	}
	if err != nil {
		return model.EncodeError(job.Format, err)
	}

	metrics.AddFrames(string(job.Format), encoderName, job.Frames.Len())
	metrics.ObserveEncode(string(job.Format), encoderName, time.Since(start).Seconds())
	logger.Info().Int(xlog.FieldFrames, job.Frames.Len()).Str(xlog.FieldPath, job.Output).Dur("elapsed", time.Since(start)).Msg("fallback encode complete")
	return nil
}

// writeAtomically runs write against a pending file next to path and
// renames it into place only when write succeeds.
func writeAtomically(path string, write func(*renameio.PendingFile) error) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pf.Cleanup()
	}()

	if err := write(pf); err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// eachFrame decodes every frame onto the canvas in order, checking the
// control state before each one, and advances phase after fn returns.
func eachFrame(ctx context.Context, set model.FrameSet, state *control.State, phase *progress.Phase, fn func(i int, canvas *image.NRGBA) error) error {
	for i, f := range set.Frames {
		if err := state.Checkpoint(ctx); err != nil {
			return err
		}
		canvas, err := imgutil.LoadCanvas(f.Path, set.Width, set.Height)
		if err != nil {
			return fmt.Errorf("decode %s: %w", f.Path, err)
		}
		if err := fn(i, canvas); err != nil {
			return err
		}
		phase.Step(i + 1)
	}
	return nil
}

func isCancelled(err error) bool {
	return errors.Is(err, model.ErrCancelled)
}
