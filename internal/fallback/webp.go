package fallback

import (
	"context"
	"image"
	"math"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"framecast/internal/codec/webpmux"
	"framecast/internal/control"
	"framecast/internal/metrics"
	"framecast/internal/progress"
	"framecast/pkg/imgutil"
)

func (e *Encoder) encodeWebP(ctx context.Context, job Job, state *control.State, sink progress.Sink, logger zerolog.Logger) error {
	phase := progress.NewPhase(sink, "Encoding WebP", job.Format, job.Frames.Len(),
		progress.WithInterval(e.opts.ProgressInterval))
	phase.Start()

	duration := frameMillis(job.FPS)
	err := writeAtomically(job.Output, func(pf *renameio.PendingFile) error {
		mux, err := webpmux.NewMuxer(pf, webpmux.Options{
			Width:  job.Frames.Width,
			Height: job.Frames.Height,
			Loop:   job.Loop,
		})
		if err != nil {
			return err
		}
		err = eachFrame(ctx, job.Frames, state, phase, func(_ int, canvas *image.NRGBA) error {
			return mux.AddImage(canvas, duration)
		})
		if err != nil {
			return err
		}
		return mux.Close()
	})
	if err == nil || isCancelled(err) {
		if err == nil {
			phase.Done()
		}
		return err
	}

	logger.Warn().Err(err).Msg("animated webp failed, writing first frame only")
	metrics.IncFallback(string(job.Format), "static")
	return e.writeStill(ctx, job, state, phase)
}

// writeStill is the last resort: the first frame as a static WebP.
func (e *Encoder) writeStill(ctx context.Context, job Job, state *control.State, phase *progress.Phase) error {
	if err := state.Checkpoint(ctx); err != nil {
		return err
	}
	first := job.Frames.Frames[0]
	canvas, err := imgutil.LoadCanvas(first.Path, job.Frames.Width, job.Frames.Height)
	if err != nil {
		return err
	}
	err = writeAtomically(job.Output, func(pf *renameio.PendingFile) error {
		return webpmux.WriteStill(pf, canvas)
	})
	if err != nil {
		return err
	}
	phase.Done()
	return nil
}

func frameMillis(fps float64) int {
	return max(int(math.Round(1000/fps)), 1)
}
