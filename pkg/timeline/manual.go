package timeline

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance. Tasks run synchronously on the goroutine
// calling Advance, so it is meant for tests.
type Manual struct {
	mu    sync.Mutex
	owner sync.Locker
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Bind makes due tasks run while holding owner, like a Scheduler returned by New.
func (m *Manual) Bind(owner sync.Locker) Scheduler {
	m.mu.Lock()
	m.owner = owner
	m.mu.Unlock()
	return m
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{at: m.now.Add(d), seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

// Pending returns the number of tasks that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running due tasks in deadline order.
// Tasks scheduled by a running task are run too if they fall due within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.next(target)
		if t == nil {
			break
		}
		m.run(t)
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) run(t *manualTask) {
	m.mu.Lock()
	owner := m.owner
	m.mu.Unlock()

	if owner == nil {
		t.f()
		return
	}

	owner.Lock()
	defer owner.Unlock()
	if t.stopped {
		return
	}
	t.f()
}

func (m *Manual) next(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.tasks = live
	sort.Slice(m.tasks, func(i, j int) bool {
		if m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at.Before(m.tasks[j].at)
	})

	if len(m.tasks) == 0 || m.tasks[0].at.After(target) {
		return nil
	}
	t := m.tasks[0]
	t.fired = true
	if t.at.After(m.now) {
		m.now = t.at
	}
	return t
}
