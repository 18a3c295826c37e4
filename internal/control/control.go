// Package control implements the pause/resume/cancel token shared by every
// long-running encode loop and by external process supervisors.
package control

import (
	"context"
	"sync/atomic"
	"time"

	"framecast/internal/model"
)

type Signal int32

const (
	Running Signal = iota
	Paused
	Cancelled
)

func (s Signal) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

const DefaultPollInterval = 50 * time.Millisecond

// State is safe for concurrent use. The zero value is Running with the
// default poll interval.
type State struct {
	v    atomic.Int32
	poll time.Duration
}

func New(poll time.Duration) *State {
	return &State{poll: poll}
}

func (s *State) Load() Signal {
	return Signal(s.v.Load())
}

func (s *State) Pause() {
	s.set(Paused)
}

func (s *State) Resume() {
	s.set(Running)
}

func (s *State) Cancel() {
	s.v.Store(int32(Cancelled))
}

// Reset returns the state to Running. Only the orchestrator calls it, at the
// start of a new request.
func (s *State) Reset() {
	s.v.Store(int32(Running))
}

// set overwrites the state unless the request has been cancelled; cancellation
// is terminal until Reset.
func (s *State) set(sig Signal) {
	for {
		cur := s.v.Load()
		if Signal(cur) == Cancelled {
			return
		}
		if s.v.CompareAndSwap(cur, int32(sig)) {
			return
		}
	}
}

func (s *State) Cancelled() bool {
	return s.Load() == Cancelled
}

func (s *State) PollInterval() time.Duration {
	if s.poll <= 0 {
		return DefaultPollInterval
	}
	return s.poll
}

// Checkpoint blocks while paused and reports model.ErrCancelled once the
// state is Cancelled or ctx is done. Loops call it before each unit of work.
func (s *State) Checkpoint(ctx context.Context) error {
	var ticker *time.Ticker
	for {
		if err := ctx.Err(); err != nil {
			return model.ErrCancelled
		}
		switch s.Load() {
		case Cancelled:
			return model.ErrCancelled
		case Running:
			return nil
		}
		if ticker == nil {
			ticker = time.NewTicker(s.PollInterval())
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}
