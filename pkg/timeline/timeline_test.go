package timeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualRunsDueTasksInOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []string
	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })
	m.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	m.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, time.Unix(3, 0), m.Now())
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	ran := false
	task := m.AfterFunc(time.Second, func() { ran = true })
	assert.True(t, task.Stop())
	assert.False(t, task.Stop(), "second stop must report false")

	m.Advance(time.Minute)
	assert.False(t, ran)
}

func TestManualChainedTasks(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	count := 0
	var tick func()
	tick = func() {
		count++
		m.AfterFunc(time.Second, tick)
	}
	m.AfterFunc(time.Second, tick)

	m.Advance(3 * time.Second)
	assert.Equal(t, 3, count)
}

func TestSerialRunsUnderLock(t *testing.T) {
	var mu sync.Mutex
	s := New(&mu)

	done := make(chan struct{})
	s.AfterFunc(time.Millisecond, func() {
		// TryLock fails because the task already holds mu
		assert.False(t, mu.TryLock())
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "task did not run")
	}
}

func TestSerialStopBeforeFire(t *testing.T) {
	var mu sync.Mutex
	s := New(&mu)

	ran := make(chan struct{}, 1)
	mu.Lock()
	task := s.AfterFunc(time.Millisecond, func() { ran <- struct{}{} })
	time.Sleep(10 * time.Millisecond)
	// the timer fired and is waiting for the lock; Stop must still win
	task.Stop()
	mu.Unlock()

	select {
	case <-ran:
		require.Fail(t, "stopped task ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManualBindRunsUnderOwner(t *testing.T) {
	var mu sync.Mutex
	m := NewManual(time.Unix(0, 0))
	s := m.Bind(&mu)

	locked := false
	s.AfterFunc(time.Second, func() { locked = !mu.TryLock() })

	m.Advance(time.Second)
	assert.True(t, locked)
	assert.True(t, mu.TryLock(), "owner released after the task")
}
