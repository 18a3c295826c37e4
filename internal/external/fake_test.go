package external

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"framecast/internal/config"
)

// fakeFFmpeg behaves like ffmpeg -progress pipe:1 closely enough for the
// adapter: it prints frame=N lines, honours FAKE_* knobs and writes its last
// argument as the output file.
const fakeFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then echo "ffmpeg version fake"; exit 0; fi
if [ -n "$FAKE_ARGS_LOG" ]; then echo "$@" >> "$FAKE_ARGS_LOG"; fi
if [ -n "$FAKE_FAIL" ]; then echo "Error: invalid filter graph" >&2; exit 1; fi
out=""
for a in "$@"; do out="$a"; done
total=${FAKE_FRAMES:-3}
i=1
while [ $i -le $total ]; do
  echo "frame=$i"
  echo "progress=continue"
  if [ -n "$FAKE_SLEEP" ]; then sleep $FAKE_SLEEP; fi
  i=$((i+1))
done
echo "progress=end"
if [ -z "$FAKE_NO_OUTPUT" ]; then printf 'fake-output' > "$out"; fi
exit 0
`

const fakeWebPMux = `#!/bin/sh
if [ "$1" = "-version" ]; then echo "1.3.2"; exit 0; fi
if [ -n "$FAKE_ARGS_LOG" ]; then echo "webpmux $@" >> "$FAKE_ARGS_LOG"; fi
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
printf 'RIFF-fake' > "$out"
exit 0
`

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// fakeConfig returns a config whose candidates point only at fake tools in a
// fresh directory.
func fakeConfig(t *testing.T, withMux bool) config.Config {
	t.Helper()
	bin := t.TempDir()
	cfg := config.Default()
	cfg.FFmpegCandidates = []string{writeTool(t, bin, "ffmpeg", fakeFFmpeg)}
	cfg.WebPMuxCandidates = []string{filepath.Join(bin, "missing-webpmux")}
	if withMux {
		cfg.WebPMuxCandidates = []string{writeTool(t, bin, "webpmux", fakeWebPMux)}
	}
	cfg.TempDir = t.TempDir()
	cfg.SupervisorPoll = 5 * time.Millisecond
	cfg.ProgressInterval = 0
	return cfg
}
