// Package pipeline drives candidates through fetch, extraction and persistence.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Pauser blocks for delay or until ctx is done, whichever comes first.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Task is one unit of sequential work.
type Task func(ctx context.Context)

// Scheduler runs tasks one at a time and pauses for the pacing delay after
// each of them. The context is checked before every task, so a cancellation
// takes effect within one pacing interval.
type Scheduler struct {
	delay  atomic.Int64
	pauser Pauser
}

// NewScheduler builds a Scheduler. A nil pauser sleeps on a timer.
func NewScheduler(delay time.Duration, pauser Pauser) *Scheduler {
	if pauser == nil {
		pauser = timerPauser{}
	}
	s := &Scheduler{pauser: pauser}
	s.SetDelay(delay)
	return s
}

// Delay returns the current pacing delay.
func (s *Scheduler) Delay() time.Duration {
	return time.Duration(s.delay.Load())
}

// SetDelay changes the pacing delay; negative values are treated as zero.
// It is safe to call while Run is in progress.
func (s *Scheduler) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.delay.Store(int64(d))
}

// Run executes tasks in order and returns how many ran. The error is the
// context error when Run stopped before the queue drained.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) (int, error) {
	ran := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		task(ctx)
		ran++
		s.pauser.Pause(ctx, s.Delay())
	}
	return ran, ctx.Err()
}
