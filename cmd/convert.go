package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"framecast/internal/control"
	xlog "framecast/internal/log"
	"framecast/internal/metrics"
	"framecast/internal/model"
	"framecast/internal/pipeline"
	"framecast/internal/progress"
	"framecast/internal/tui"
)

var (
	convertOutputDir   string
	convertName        string
	convertFPS         float64
	convertLoop        int
	convertFormats     []string
	convertCompress    string
	convertQuality     int
	convertAPIKey      string
	convertNoTUI       bool
	convertNoExternal  bool
	convertMetricsFile string
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <folder> | <frame>...",
	Short: "Encode a frame sequence into animated images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args)
		if err != nil {
			return err
		}
		if convertNoExternal {
			cfg.DisableExternal = true
		}
		if err := configureLogging(os.Stderr, !convertNoTUI); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conv := pipeline.New(cfg)
		state := control.New(cfg.PausePoll)

		var results []model.Result
		if convertNoTUI {
			results, err = conv.Convert(ctx, req, state, logSinkFor())
		} else {
			results, err = runWithTUI(ctx, conv, req, state)
		}

		writeMetrics(convertMetricsFile)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.ResultRows(results)))
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d formats failed", failed, len(results))
		}
		return nil
	},
}

func runWithTUI(ctx context.Context, conv *pipeline.Converter, req model.Request, state *control.State) ([]model.Result, error) {
	events := make(chan progress.Event, 256)
	program := tea.NewProgram(tui.NewModel(events, state))

	uiDone := make(chan struct{})
	go func() {
		_, _ = program.Run()
		close(uiDone)
	}()

	results, err := conv.Convert(ctx, req, state, progress.ChanSink(events))
	close(events)
	<-uiDone
	return results, err
}

// writeMetrics exports the registry when path is set. A failure is logged and
// does not change the exit status.
func writeMetrics(path string) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		logger := xlog.WithComponent("cli")
		logger.Error().Err(err).Str(xlog.FieldPath, path).Msg("write metrics textfile")
	}
}

// logSinkFor reports phase changes at info level and every event at debug.
func logSinkFor() progress.Sink {
	logger := xlog.WithComponent("progress")
	var phase string
	return progress.FuncSink(func(e progress.Event) {
		ev := logger.Debug()
		if e.Phase != phase {
			phase = e.Phase
			ev = logger.Info()
		}
		ev.Str(xlog.FieldPhase, e.Phase).
			Str(xlog.FieldFormat, string(e.Format)).
			Int("current", e.Current).
			Int("total", e.Total).
			Float64("percent", e.Percent).
			Msg("progress")
	})
}

func buildRequest(args []string) (model.Request, error) {
	req := model.Request{
		OutputDir:  convertOutputDir,
		OutputName: convertName,
		FPS:        convertFPS,
		LoopCount:  convertLoop,
	}

	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			req.InputMode = model.InputFolder
			req.InputPath = args[0]
		}
	}
	if req.InputMode == "" {
		req.InputMode = model.InputFiles
		req.InputPaths = args
	}
	if req.OutputDir == "" {
		req.OutputDir = "."
		if req.InputMode == model.InputFolder {
			req.OutputDir = filepath.Dir(filepath.Clean(req.InputPath))
		}
	}

	for _, raw := range convertFormats {
		for _, part := range strings.Split(raw, ",") {
			f, err := model.ParseFormat(part)
			if err != nil {
				return req, err
			}
			req.Formats = append(req.Formats, f)
		}
	}

	switch strings.ToLower(convertCompress) {
	case "", "none":
	case "local":
		req.Compression = model.Compression{Kind: model.CompressLocal, Quality: convertQuality}
	case "remote":
		key := convertAPIKey
		if key == "" {
			key = cfg.APIKey
		}
		req.Compression = model.Compression{Kind: model.CompressRemote, Credential: key}
	default:
		return req, fmt.Errorf("unknown --compress %q (expected none|local|remote)", convertCompress)
	}
	return req, req.Validate()
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertOutputDir, "output", "o", "", "output directory (default: next to the input folder)")
	f.StringVarP(&convertName, "name", "n", "", "output base name (default: <input>_<W>x<H>)")
	f.Float64Var(&convertFPS, "fps", 10, "frames per second")
	f.IntVar(&convertLoop, "loop", 0, "loop count, 0 loops forever")
	f.StringSliceVarP(&convertFormats, "format", "f", []string{"gif"}, "output formats: gif, webp, apng")
	f.StringVar(&convertCompress, "compress", "none", "post-compression: none, local or remote")
	f.IntVar(&convertQuality, "quality", 80, "local lossy quality 0-100")
	f.StringVar(&convertAPIKey, "api-key", "", "remote compression credential (default from config)")
	f.BoolVar(&convertNoTUI, "no-tui", false, "log progress instead of drawing the progress view")
	f.BoolVar(&convertNoExternal, "no-external", false, "never run ffmpeg or webpmux")
	f.StringVar(&convertMetricsFile, "metrics-textfile", "", "write prometheus metrics to this file on exit")

	rootCmd.AddCommand(convertCmd)
}
