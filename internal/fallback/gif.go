package fallback

import (
	"bufio"
	"context"
	"image"

	"github.com/google/renameio/v2"

	"framecast/internal/codec/gifw"
	"framecast/internal/control"
	"framecast/internal/progress"
	"framecast/internal/quant"
)

// gifQuality is used for lossless requests; GIF is palette-limited anyway.
const gifQuality = 100

func (e *Encoder) encodeGIF(ctx context.Context, job Job, state *control.State, sink progress.Sink) error {
	quality := gifQuality
	if job.Lossy {
		quality = job.Quality
	}
	params := quant.ParamsForQuality(quality)

	phase := progress.NewPhase(sink, "Encoding GIF", job.Format, job.Frames.Len(),
		progress.WithInterval(e.opts.ProgressInterval))
	phase.Start()

	err := writeAtomically(job.Output, func(pf *renameio.PendingFile) error {
		bw := bufio.NewWriter(pf)
		gw, err := gifw.NewWriter(bw, gifw.Options{
			Width:  job.Frames.Width,
			Height: job.Frames.Height,
			Loop:   job.Loop,
			Delay:  gifw.DelayForFPS(job.FPS),
		})
		if err != nil {
			return err
		}

		err = eachFrame(ctx, job.Frames, state, phase, func(_ int, canvas *image.NRGBA) error {
			frame := quant.FromNRGBA(canvas)
			pal, err := quant.BuildPalette(frame, params)
			if err != nil {
				return err
			}
			idx, err := pal.Remap(frame)
			if err != nil {
				return err
			}
			transparent := -1
			if i, ok := pal.TransparentIndex(); ok {
				transparent = i
			}
			return gw.WriteFrame(pal.Paletted(idx), transparent)
		})
		if err != nil {
			return err
		}
		if err := gw.Close(); err != nil {
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
