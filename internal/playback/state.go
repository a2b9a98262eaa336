package playback

import (
	"slices"
	"time"

	"github.com/sharetube/zone/internal/domain"
)

// State is the persisted form of an Engine. Time is the elapsed seconds of Current.
type State struct {
	Current *domain.QueueItem  `json:"current"`
	Queue   []domain.QueueItem `json:"queue"`
	Time    float64            `json:"time"`
}

func (e *Engine) CopyState() State {
	state := State{Queue: slices.Clone(e.queue)}
	if state.Queue == nil {
		state.Queue = []domain.QueueItem{}
	}

	if e.current != nil {
		current := *e.current
		state.Current = &current
		state.Time = e.Elapsed().Seconds()
	}

	return state
}

// LoadState replaces the engine state. The clock of the loaded current item resumes from
// the saved offset. The only event emitted is playing, when a queue is loaded without a current item.
func (e *Engine) LoadState(state State) {
	e.stopClock()
	clear(e.votes)
	e.current = nil
	e.queue = slices.Clone(state.Queue)

	for _, item := range e.queue {
		e.lastId = max(e.lastId, item.ItemId)
	}

	if state.Current != nil {
		e.lastId = max(e.lastId, state.Current.ItemId)
		offset := time.Duration(state.Time * float64(time.Second))
		e.start(*state.Current, e.sched.Now().Add(-offset))
		return
	}

	if len(e.queue) > 0 {
		e.promote()
	}
}
