package external

import (
	"strings"
	"sync"
)

// LineRing keeps the last N lines written to it. It is used as the stderr of
// external tools so that failures can quote the tail of their output.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial strings.Builder
}

func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 32
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer. Lines split across writes are joined.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			r.partial.WriteString(s)
			break
		}
		r.partial.WriteString(s[:i])
		r.push(r.partial.String())
		r.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Lines returns the retained lines oldest first, followed by any
// unterminated trailing line.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count+1)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	if tail := strings.TrimSpace(r.partial.String()); tail != "" {
		out = append(out, tail)
	}
	return out
}

func (r *LineRing) String() string {
	return strings.Join(r.Lines(), " | ")
}
