package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
	onCall func()
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	hook := p.onCall
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (p *recordingPauser) calls() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func TestSchedulerRunsTasksInOrderWithPacing(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	s := NewScheduler(400*time.Millisecond, pauser)

	var order []int
	tasks := make([]Task, 0, 3)
	for i := range 3 {
		tasks = append(tasks, func(context.Context) { order = append(order, i) })
	}

	ran, err := s.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 3, ran)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 400 * time.Millisecond, 400 * time.Millisecond}, pauser.calls())
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	pauser := &recordingPauser{onCall: cancel}
	s := NewScheduler(time.Second, pauser)

	ran := 0
	tasks := []Task{
		func(context.Context) { ran++ },
		func(context.Context) { ran++ },
	}
	n, err := s.Run(ctx, tasks)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ran)
}

func TestSchedulerSetDelay(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	s := NewScheduler(-time.Second, pauser)
	assert.Zero(t, s.Delay())

	s.SetDelay(50 * time.Millisecond)
	_, err := s.Run(context.Background(), []Task{func(context.Context) {}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, pauser.calls())
}

func TestTimerPauserHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	timerPauser{}.Pause(ctx, 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	timerPauser{}.Pause(context.Background(), 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
