package fallback

import (
	"bufio"
	"context"
	"errors"
	"image"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"framecast/internal/codec/apngw"
	"framecast/internal/config"
	"framecast/internal/control"
	"framecast/internal/metrics"
	"framecast/internal/progress"
	"framecast/internal/quant"
	"framecast/pkg/imgutil"
)

// apngEncoding turns a canvas into raw rows for the writer.
type apngEncoding struct {
	palette *quant.Palette
	quality int
	lossy   bool
}

func (a apngEncoding) rows(canvas *image.NRGBA) ([]byte, error) {
	frame := quant.FromNRGBA(canvas)
	switch {
	case a.palette != nil:
		idx, err := a.palette.Remap(frame)
		if err != nil {
			return nil, err
		}
		return idx.Pix, nil
	case a.lossy:
		reduced, err := quant.ReduceForQuality(frame, a.quality)
		if err != nil {
			return nil, err
		}
		return reduced.Pix, nil
	default:
		return frame.Pix, nil
	}
}

func (e *Encoder) encodeAPNG(ctx context.Context, job Job, state *control.State, sink progress.Sink, logger zerolog.Logger) error {
	enc := apngEncoding{lossy: job.Lossy, quality: job.Quality}
	if job.Lossy && e.opts.Quantizer == config.QuantizerPalette {
		pal, err := e.firstFramePalette(ctx, job, state)
		switch {
		case err == nil:
			enc.palette = pal
		case isCancelled(err):
			return err
		default:
			logger.Warn().Err(err).Msg("palette build failed, using ordered dithering")
			metrics.IncFallback(string(job.Format), "bitdepth")
		}
	}

	num, den := apngw.Delay(job.FPS)
	opts := apngw.Options{
		Width:    job.Frames.Width,
		Height:   job.Frames.Height,
		Frames:   job.Frames.Len(),
		Plays:    job.Loop,
		DelayNum: num,
		DelayDen: den,
	}
	if enc.palette != nil {
		opts.Palette = enc.palette.ColorPalette()
	}

	phase := progress.NewPhase(sink, "Encoding APNG", job.Format, job.Frames.Len(),
		progress.WithInterval(e.opts.ProgressInterval))
	phase.Start()

	err := writeAtomically(job.Output, func(pf *renameio.PendingFile) error {
		bw := bufio.NewWriter(pf)
		aw, err := apngw.NewWriter(bw, opts)
		if err != nil {
			return err
		}
		err = eachFrame(ctx, job.Frames, state, phase, func(_ int, canvas *image.NRGBA) error {
			rows, err := enc.rows(canvas)
			if err != nil {
				return err
			}
			return aw.WriteFrame(rows)
		})
		if err != nil {
			return err
		}
		if err := aw.Close(); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return err
	}
	phase.Done()
	return nil
}

// firstFramePalette builds the shared palette every lossy APNG frame is
// remapped through.
func (e *Encoder) firstFramePalette(ctx context.Context, job Job, state *control.State) (*quant.Palette, error) {
	if err := state.Checkpoint(ctx); err != nil {
		return nil, err
	}
	first := job.Frames.Frames[0]
	canvas, err := imgutil.LoadCanvas(first.Path, job.Frames.Width, job.Frames.Height)
	if err != nil {
		return nil, err
	}
	pal, err := quant.BuildPalette(quant.FromNRGBA(canvas), quant.ParamsForQuality(job.Quality))
	if err != nil {
		return nil, err
	}
	if pal.Len() == 0 {
		return nil, errors.New("empty palette")
	}
	return pal, nil
}
