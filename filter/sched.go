package filter

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Scheduler limits the number of concurrent streaming runs across all
// sessions. Matching is CPU bound, so running more than #CPU runs only adds
// memory pressure.
//
// A run represents something which has acquired on the semaphore. acquire
// blocks, so a superseded run that is still draining delays the next one by
// at most the time it takes to observe its cancellation.
type Scheduler struct {
	throttle *semaphore.Weighted

	// capacity is the max concurrent runs we allow.
	capacity int64
}

// NewScheduler returns a scheduler admitting capacity concurrent runs. A
// capacity < 1 means runtime.GOMAXPROCS(0).
func NewScheduler(capacity int64) *Scheduler {
	if capacity < 1 {
		capacity = int64(runtime.GOMAXPROCS(0))
	}
	return &Scheduler{
		throttle: semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// acquire blocks until a process is created. It will only return an error
// if the context expires.
func (s *Scheduler) acquire(ctx context.Context) (*process, error) {
	if err := s.throttle.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &process{
		releaseFunc: func() {
			s.throttle.Release(1)
		},
	}, nil
}

// process represents a running filter. When the process is done a call to
// Release is required.
type process struct {
	// releaseFunc is called once by Release
	releaseFunc func()
}

// Release the semaphore associated with this process. Can only be called
// once.
func (p *process) Release() {
	p.releaseFunc()
}

// newDeadlineTimer returns a timer which fires after d. Once it fires
// Exceeded will always return true until Reset. Callers must call Stop when
// done to release resources.
func newDeadlineTimer(d time.Duration) *deadlineTimer {
	return &deadlineTimer{
		t: time.NewTimer(d),
		d: d,
	}
}

type deadlineTimer struct {
	// t.C fires after the deadline. Once it fires we set it to nil to
	// indicate it has fired.
	t *time.Timer
	d time.Duration
}

// Exceeded returns true if time is after the deadline.
func (t *deadlineTimer) Exceeded() bool {
	if t.t == nil {
		return true
	}
	select {
	case <-t.t.C:
	default:
		return false
	}

	t.Stop()

	return true
}

// Reset arms the timer for another interval.
func (t *deadlineTimer) Reset() {
	t.Stop()
	t.t = time.NewTimer(t.d)
}

// Stop stops the underlying timer. Can be called multiple times.
func (t *deadlineTimer) Stop() {
	if t.t == nil {
		return
	}
	t.t.Stop()
	t.t = nil
}

// Capacity returns the number of runs admitted concurrently.
func (s *Scheduler) Capacity() int64 {
	return s.capacity
}
