package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecast/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestPhaseMonotonicAndClamped(t *testing.T) {
	rec := &recorder{}
	p := NewPhase(rec, "Encoding GIF", model.FormatGIF, 10, WithFile("/out/a.gif"))

	p.Start()
	p.Step(5)
	p.Step(3)
	p.Report(4, 250)
	p.Report(4, -20)
	p.Done()

	events := rec.all()
	require.NotEmpty(t, events)
	prevPct, prevCur := -1.0, -1
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, prevPct)
		assert.GreaterOrEqual(t, e.Current, prevCur)
		assert.GreaterOrEqual(t, e.Percent, 0.0)
		assert.LessOrEqual(t, e.Percent, 100.0)
		assert.Equal(t, model.FormatGIF, e.Format)
		assert.Equal(t, "/out/a.gif", e.File)
		prevPct, prevCur = e.Percent, e.Current
	}
	last := events[len(events)-1]
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, 10, last.Current)
}

func TestPhaseThrottleKeepsEndpoints(t *testing.T) {
	rec := &recorder{}
	p := NewPhase(rec, "Converting with FFmpeg", model.FormatAPNG, 1000, WithInterval(time.Hour))

	p.Start()
	for i := 1; i < 1000; i++ {
		p.Report(i, float64(i)/10)
	}
	p.Done()

	events := rec.all()
	// Start, one token-bucket burst, Done.
	assert.LessOrEqual(t, len(events), 3)
	assert.Equal(t, 0.0, events[0].Percent)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)
}

func TestChanSinkNeverBlocks(t *testing.T) {
	ch := make(chan Event, 1)
	sink := ChanSink(ch)
	sink.Emit(Event{Phase: "a"})
	sink.Emit(Event{Phase: "b"})
	assert.Len(t, ch, 1)
	assert.Equal(t, "a", (<-ch).Phase)
}

func TestEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() { Emit(nil, Event{}) })
}
