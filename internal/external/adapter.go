// Package external drives FFmpeg and webpmux to encode a frame set. Tools are
// optional: every failure is reported as a typed error so the caller can fall
// back to the in-process encoders.
package external

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"framecast/internal/control"
	xlog "framecast/internal/log"
	"framecast/internal/metrics"
	"framecast/internal/model"
	"framecast/internal/progress"
	"framecast/internal/scanner"
)

const encoderName = "ffmpeg"

type Options struct {
	TempDir          string
	SupervisorPoll   time.Duration
	ProgressInterval time.Duration
	Strategies       []Strategy
}

type Adapter struct {
	locator *Locator
	opts    Options
	logger  zerolog.Logger
}

func New(locator *Locator, opts Options) *Adapter {
	return &Adapter{
		locator: locator,
		opts:    opts,
		logger:  xlog.WithComponent("external"),
	}
}

// Job describes one format encode of a frame set.
type Job struct {
	Frames model.FrameSet
	Format model.Format
	Output string
	FPS    float64
	Loop   int
}

// TempOutput returns the path an encoder writes to before the final rename.
func TempOutput(final string) string {
	ext := filepath.Ext(final)
	return strings.TrimSuffix(final, ext) + ".tmp" + ext
}

// Encode writes job.Output with the external tools. The destination is only
// touched by the final rename.
func (a *Adapter) Encode(ctx context.Context, job Job, state *control.State, sink progress.Sink) error {
	if job.Frames.Len() == 0 {
		return model.ErrEmptyInput
	}
	if _, ok := scanner.Extension(job.Frames); !ok {
		return model.ErrMixedExtensions
	}
	if err := state.Checkpoint(ctx); err != nil {
		return err
	}
	ffmpeg, err := a.locator.Find(ctx, ToolFFmpeg)
	if err != nil {
		return err
	}

	logger := a.logger.With().Str(xlog.FieldFormat, string(job.Format)).Str(xlog.FieldTool, ffmpeg).Logger()
	start := time.Now()

	switch job.Format {
	case model.FormatGIF:
		err = a.encodeSequence(ctx, job, ffmpeg, gifArgs(job), state, sink, logger)
	case model.FormatAPNG:
		err = a.encodeSequence(ctx, job, ffmpeg, apngArgs(job), state, sink, logger)
	case model.FormatWebP:
		err = a.encodeWebP(ctx, job, ffmpeg, state, sink, logger)
	default:
		err = fmt.Errorf("%w: unsupported format %q", model.ErrEncodeFailure, job.Format)
	}
	if err != nil {
		return err
	}

	metrics.AddFrames(string(job.Format), encoderName, job.Frames.Len())
	metrics.ObserveEncode(string(job.Format), encoderName, time.Since(start).Seconds())
	logger.Info().Int(xlog.FieldFrames, job.Frames.Len()).Str(xlog.FieldPath, job.Output).Dur("elapsed", time.Since(start)).Msg("external encode complete")
	return nil
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// baseArgs are shared by the sequence encodes; the caller appends the
// format-specific tail and the output path.
func baseArgs(job Job) []string {
	return []string{
		"-y", "-hide_banner", "-nostats", "-loglevel", "error",
		"-framerate", formatFPS(job.FPS),
		"-start_number", "1",
		"-i", "{pattern}",
	}
}

func gifArgs(job Job) []string {
	filter := fmt.Sprintf(
		"fps=%s,split[s0][s1];[s0]palettegen=max_colors=256:stats_mode=diff[p];[s1][p]paletteuse=dither=bayer:bayer_scale=5",
		formatFPS(job.FPS),
	)
	return append(baseArgs(job),
		"-vf", filter,
		"-loop", strconv.Itoa(job.Loop),
		"-threads", "0",
	)
}

func apngArgs(job Job) []string {
	return append(baseArgs(job),
		"-plays", strconv.Itoa(job.Loop),
		"-vf", "format=rgba,setsar=1",
		"-f", "apng",
		"-threads", "0",
	)
}

func (a *Adapter) encodeSequence(ctx context.Context, job Job, ffmpeg string, args []string, state *control.State, sink progress.Sink, logger zerolog.Logger) error {
	if err := state.Checkpoint(ctx); err != nil {
		return err
	}

	seq, err := Materialize(a.opts.TempDir, string(job.Format), job.Frames.Paths(), a.opts.Strategies)
	if err != nil {
		return err
	}
	defer func() {
		if err := seq.Remove(); err != nil {
			logger.Warn().Err(err).Str(xlog.FieldPath, seq.Dir).Msg("failed to remove sequence dir")
		}
	}()

	tmp := TempOutput(job.Output)
	defer removeIfExists(tmp)

	for i, arg := range args {
		if arg == "{pattern}" {
			args[i] = seq.Pattern
		}
	}
	args = append(args, "-progress", "pipe:1", tmp)

	total := job.Frames.Len()
	phase := progress.NewPhase(sink, "Converting with FFmpeg", job.Format, total,
		progress.WithInterval(a.opts.ProgressInterval))
	phase.Start()

	if err := run(ctx, invocation{bin: ffmpeg, args: args, total: total, phase: phase}, state, a.opts.SupervisorPoll, logger); err != nil {
		return err
	}
	return a.commit(ctx, tmp, job.Output, state, phase)
}

// commit confirms the tool produced output and renames it into place.
func (a *Adapter) commit(ctx context.Context, tmp, final string, state *control.State, phase *progress.Phase) error {
	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: tool reported success but produced no output", model.ErrEncodeFailure)
	}
	// Without suspend support this is where a pause takes effect.
	if err := state.Checkpoint(ctx); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("%w: rename output: %v", model.ErrEncodeFailure, err)
	}
	phase.Done()
	return nil
}

func (a *Adapter) encodeWebP(ctx context.Context, job Job, ffmpeg string, state *control.State, sink progress.Sink, logger zerolog.Logger) error {
	webpmux, err := a.locator.Find(ctx, ToolWebPMux)
	if err != nil {
		return err
	}

	dir, err := MakeTempDir(a.opts.TempDir, "webp_frames")
	if err != nil {
		return fmt.Errorf("%w: create frame dir: %v", model.ErrEncodeFailure, err)
	}
	defer os.RemoveAll(dir)

	tmp := TempOutput(job.Output)
	defer removeIfExists(tmp)

	total := job.Frames.Len()
	phase := progress.NewPhase(sink, "Converting frames to WebP", job.Format, total)
	phase.Start()

	frames := make([]string, total)
	for i, src := range job.Frames.Paths() {
		if err := state.Checkpoint(ctx); err != nil {
			return err
		}
		frames[i] = filepath.Join(dir, fmt.Sprintf("frame_%06d.webp", i+1))
		args := []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-i", src,
			"-vcodec", "libwebp",
			"-pix_fmt", "yuva420p",
			"-lossless", "0",
			"-quality", "80",
			"-compression_level", "4",
			frames[i],
		}
		if err := run(ctx, invocation{bin: ffmpeg, args: args}, state, a.opts.SupervisorPoll, logger); err != nil {
			return err
		}
		// Per-frame encoding is the first half of the work.
		phase.Report(i+1, float64(i+1)/float64(total)*50)
	}

	if err := state.Checkpoint(ctx); err != nil {
		return err
	}
	mux := progress.NewPhase(sink, "Combining frames with webpmux", job.Format, total)
	mux.Report(total, 60)

	delay := delayMillis(job.FPS)
	args := make([]string, 0, total*3+4)
	for _, f := range frames {
		// +duration+xoff+yoff+dispose, dispose 1 clears to background
		args = append(args, "-frame", f, fmt.Sprintf("+%d+0+0+1", delay))
	}
	args = append(args, "-loop", strconv.Itoa(job.Loop), "-o", tmp)

	logger = logger.With().Str(xlog.FieldTool, webpmux).Logger()
	if err := run(ctx, invocation{bin: webpmux, args: args}, state, a.opts.SupervisorPoll, logger); err != nil {
		return err
	}
	return a.commit(ctx, tmp, job.Output, state, mux)
}

// delayMillis is the per-frame duration for fps, at least 1 ms.
func delayMillis(fps float64) int {
	return max(int(math.Round(1000/fps)), 1)
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger := xlog.WithComponent("external")
		logger.Warn().Err(err).Str(xlog.FieldPath, path).Msg("failed to remove temp output")
	}
}
