package external

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"framecast/internal/control"
	"framecast/internal/model"
	"framecast/internal/procgroup"
	"framecast/internal/progress"
)

// maxRunningPercent caps progress until the tool has exited successfully and
// its output has been confirmed.
const maxRunningPercent = 99.5

type invocation struct {
	bin   string
	args  []string
	total int
	phase *progress.Phase
}

// run executes one external process under supervision. It returns only after
// the process has been reaped and both helper goroutines have been joined.
func run(ctx context.Context, inv invocation, state *control.State, poll time.Duration, logger zerolog.Logger) error {
	cmd := exec.Command(inv.bin, inv.args...)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", model.ErrEncodeFailure, err)
	}
	stderr := NewLineRing(32)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", model.ErrEncodeFailure, inv.bin, err)
	}
	group := procgroup.New(cmd)
	logger.Debug().Int("pid", group.Pid()).Strs("args", inv.args).Msg("external process started")

	var (
		g        errgroup.Group
		killed   atomic.Bool
		stop     = make(chan struct{})
		readDone = make(chan struct{})
	)
	g.Go(func() error {
		defer close(readDone)
		return readProgress(stdout, inv.total, inv.phase)
	})
	g.Go(func() error {
		if supervise(ctx, state, group, poll, stop, logger) {
			killed.Store(true)
		}
		return nil
	})

	// Wait closes the pipe, so the reader has to reach EOF first.
	<-readDone
	waitErr := cmd.Wait()
	close(stop)
	readErr := g.Wait()

	if killed.Load() {
		return model.ErrCancelled
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %s: %v: %s", model.ErrEncodeFailure, inv.bin, waitErr, stderr.String())
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		logger.Debug().Err(readErr).Msg("progress stream ended with error")
	}
	return nil
}

// supervise mirrors control state changes onto the process group until stop
// is closed. It reports whether it killed the process.
func supervise(ctx context.Context, state *control.State, group *procgroup.Group, poll time.Duration, stop <-chan struct{}, logger zerolog.Logger) bool {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := control.Running
	for {
		cur := state.Load()
		if ctx.Err() != nil {
			cur = control.Cancelled
		}
		if cur != last {
			switch cur {
			case control.Paused:
				if procgroup.SupportsSuspend() {
					if err := group.Suspend(); err != nil {
						logger.Warn().Err(err).Msg("suspend failed")
					}
				}
			case control.Running:
				if procgroup.SupportsSuspend() {
					if err := group.Continue(); err != nil {
						logger.Warn().Err(err).Msg("continue failed")
					}
				}
			case control.Cancelled:
				if err := group.Kill(); err != nil {
					logger.Warn().Err(err).Msg("kill failed")
				}
				return true
			}
			last = cur
		}

		select {
		case <-stop:
			return false
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// readProgress consumes the key=value stream written by -progress pipe:1.
// Only frame= is used. The stream is always drained to EOF.
func readProgress(r io.Reader, total int, phase *progress.Phase) error {
	scanner := bufio.NewScanner(r)
	last := -1
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok || strings.TrimSpace(key) != "frame" || phase == nil || total <= 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n == last {
			continue
		}
		last = n
		phase.Report(min(n, total), min(float64(n)/float64(total)*100, maxRunningPercent))
	}
	return scanner.Err()
}
