// Package progress carries conversion progress to UI consumers. Delivery is
// best effort: sinks never block the encoder and a dropped event is not an
// error.
package progress

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"framecast/internal/model"
)

type Event struct {
	Phase   string
	Current int
	Total   int
	Percent float64
	Format  model.Format
	File    string
}

type Sink interface {
	Emit(Event)
}

type FuncSink func(Event)

func (f FuncSink) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// ChanSink forwards events to a channel without blocking.
type ChanSink chan<- Event

func (c ChanSink) Emit(e Event) {
	select {
	case c <- e:
	default:
	}
}

func Emit(s Sink, e Event) {
	if s == nil {
		return
	}
	s.Emit(e)
}

// Phase reports progress of one unit-counted phase. Counters and percent are
// clamped so that they never decrease within the phase and percent stays in
// [0,100].
type Phase struct {
	sink    Sink
	name    string
	format  model.Format
	file    string
	total   int
	limiter *rate.Limiter

	mu      sync.Mutex
	current int
	percent float64
}

type PhaseOption func(*Phase)

// WithFile attaches an output path to every event of the phase.
func WithFile(path string) PhaseOption {
	return func(p *Phase) { p.file = path }
}

// WithInterval throttles intermediate events to at most one per interval.
func WithInterval(d time.Duration) PhaseOption {
	return func(p *Phase) {
		if d > 0 {
			p.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func NewPhase(sink Sink, name string, format model.Format, total int, opts ...PhaseOption) *Phase {
	p := &Phase{sink: sink, name: name, format: format, total: total}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Phase) Name() string { return p.name }

// Start emits the opening 0% event.
func (p *Phase) Start() {
	p.report(0, 0, true)
}

// Step records that current units out of total are done.
func (p *Phase) Step(current int) {
	percent := 100.0
	if p.total > 0 {
		percent = float64(current) / float64(p.total) * 100
	}
	p.report(current, percent, false)
}

// Report records an explicit percent alongside the unit counter.
func (p *Phase) Report(current int, percent float64) {
	p.report(current, percent, false)
}

// Done emits the closing 100% event regardless of throttling.
func (p *Phase) Done() {
	p.report(p.total, 100, true)
}

func (p *Phase) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

func (p *Phase) report(current int, percent float64, force bool) {
	p.mu.Lock()
	if current > p.current {
		p.current = current
	}
	if p.total > 0 && p.current > p.total {
		p.current = p.total
	}
	percent = clamp(percent)
	if percent > p.percent {
		p.percent = percent
	}
	ev := Event{
		Phase:   p.name,
		Current: p.current,
		Total:   p.total,
		Percent: p.percent,
		Format:  p.format,
		File:    p.file,
	}
	emit := force || p.percent >= 100 || p.limiter == nil || p.limiter.Allow()
	p.mu.Unlock()

	if emit {
		Emit(p.sink, ev)
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
