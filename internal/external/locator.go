package external

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"framecast/internal/config"
	xlog "framecast/internal/log"
	"framecast/internal/model"
)

type Tool string

const (
	ToolFFmpeg  Tool = "ffmpeg"
	ToolWebPMux Tool = "webpmux"
)

const verifyTimeout = 5 * time.Second

type lookup struct {
	path string
	err  error
}

// Locator resolves external tools by probing an ordered candidate list and
// verifying that the candidate actually runs. Results are cached.
type Locator struct {
	candidates map[Tool][]string
	verify     func(ctx context.Context, path string) error
	logger     zerolog.Logger

	mu    sync.Mutex
	found map[Tool]lookup
}

// NewLocator builds the candidate lists from cfg: an explicit override first,
// then the configured install locations. DisableExternal yields a locator
// that finds nothing.
func NewLocator(cfg config.Config) *Locator {
	l := &Locator{
		candidates: map[Tool][]string{},
		verify:     verifyVersion,
		logger:     xlog.WithComponent("locator"),
		found:      map[Tool]lookup{},
	}
	if cfg.DisableExternal {
		return l
	}
	l.candidates[ToolFFmpeg] = withOverride(cfg.FFmpegPath, cfg.FFmpegCandidates)
	l.candidates[ToolWebPMux] = withOverride(cfg.WebPMuxPath, cfg.WebPMuxCandidates)
	return l
}

func withOverride(override string, candidates []string) []string {
	out := make([]string, 0, len(candidates)+1)
	if override != "" {
		out = append(out, override)
	}
	return append(out, candidates...)
}

// Find returns the first verified candidate for tool, or an error wrapping
// model.ErrToolUnavailable.
func (l *Locator) Find(ctx context.Context, tool Tool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res, ok := l.found[tool]; ok {
		return res.path, res.err
	}

	res := lookup{err: fmt.Errorf("%w: %s not found", model.ErrToolUnavailable, tool)}
	for _, cand := range l.candidates[tool] {
		path, ok := resolve(cand)
		if !ok {
			continue
		}
		if err := l.verify(ctx, path); err != nil {
			l.logger.Debug().Err(err).Str(xlog.FieldTool, string(tool)).Str(xlog.FieldPath, path).Msg("candidate failed verification")
			continue
		}
		res = lookup{path: path}
		break
	}
	if ctx.Err() != nil {
		// Do not cache a lookup that was cut short.
		return "", fmt.Errorf("%w: locating %s: %v", model.ErrCancelled, tool, ctx.Err())
	}

	l.found[tool] = res
	if res.err == nil {
		l.logger.Info().Str(xlog.FieldTool, string(tool)).Str(xlog.FieldPath, res.path).Msg("external tool located")
	} else {
		l.logger.Info().Str(xlog.FieldTool, string(tool)).Msg("external tool not available, using in-process encoders")
	}
	return res.path, res.err
}

func resolve(candidate string) (string, bool) {
	if !filepath.IsAbs(candidate) && filepath.Base(candidate) == candidate {
		p, err := exec.LookPath(candidate)
		return p, err == nil
	}
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	return candidate, true
}

func verifyVersion(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-version")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}
