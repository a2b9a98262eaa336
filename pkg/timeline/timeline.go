// Package timeline schedules delayed tasks that run on the same logical timeline as
// their owner: every task acquires the owner's lock before it runs.
package timeline

import (
	"sync"
	"time"
)

type Task interface {
	// Stop prevents the task from running. It reports whether the call stopped it.
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
	Now() time.Time
}

type serial struct {
	mu sync.Locker
}

// New returns a Scheduler backed by real timers whose tasks run while holding mu.
func New(mu sync.Locker) Scheduler {
	return &serial{mu: mu}
}

type serialTask struct {
	timer   *time.Timer
	stopped bool
}

func (t *serialTask) Stop() bool {
	// Stop is always called with the owner lock held, so the flag is safe to touch.
	t.stopped = true
	return t.timer.Stop()
}

func (s *serial) AfterFunc(d time.Duration, f func()) Task {
	task := &serialTask{}
	task.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// the timer may have fired while a Stop was waiting on the lock
		if task.stopped {
			return
		}
		f()
	})
	return task
}

func (s *serial) Now() time.Time {
	return time.Now()
}
