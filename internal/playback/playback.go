// Package playback holds the zone's authoritative queue, the current item with its clock
// and the skip votes for it.
//
// An Engine is not safe for concurrent use. Its owner serializes every call and passes a
// scheduler whose tasks run on the same timeline.
package playback

import (
	"errors"
	"slices"
	"time"

	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/pkg/timeline"
)

var ErrItemNotFound = errors.New("queue item not found")

type EventType string

const (
	EventQueued   EventType = "queued"
	EventPlaying  EventType = "playing"
	EventStopped  EventType = "stopped"
	EventUnqueued EventType = "unqueued"
	EventFailed   EventType = "failed"
)

type Event struct {
	Type EventType
	// Item is unset for EventStopped.
	Item domain.QueueItem
	// Current is set on EventFailed when the failing item was playing.
	Current bool
}

type Params struct {
	Scheduler    timeline.Scheduler
	StartupDelay time.Duration
	OnEvent      func(Event)
}

type Engine struct {
	sched        timeline.Scheduler
	startupDelay time.Duration
	onEvent      func(Event)

	current   *domain.QueueItem
	startedAt time.Time
	endTask   timeline.Task
	queue     []domain.QueueItem
	votes     map[string]struct{}
	lastId    int
}

func New(params *Params) *Engine {
	onEvent := params.OnEvent
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	return &Engine{
		sched:        params.Scheduler,
		startupDelay: params.StartupDelay,
		onEvent:      onEvent,
		votes:        make(map[string]struct{}),
	}
}

// QueueMedia appends media to the queue and starts it right away when nothing is playing.
func (e *Engine) QueueMedia(media domain.Media, info domain.QueueInfo) domain.QueueItem {
	e.lastId++
	item := domain.QueueItem{ItemId: e.lastId, Media: media, Info: info}
	e.queue = append(e.queue, item)
	e.emit(Event{Type: EventQueued, Item: item})

	if e.current == nil {
		e.promote()
	}

	return item
}

// Skip drops the current item and plays the next one, or stops when the queue is empty.
func (e *Engine) Skip() {
	if e.current == nil {
		return
	}

	e.stopClock()
	e.current = nil
	clear(e.votes)

	if len(e.queue) > 0 {
		e.promote()
		return
	}

	e.emit(Event{Type: EventStopped})
}

// Unqueue removes a pending item. The current item is never pending.
func (e *Engine) Unqueue(itemId int) (domain.QueueItem, error) {
	i := e.indexOf(itemId)
	if i < 0 {
		return domain.QueueItem{}, ErrItemNotFound
	}

	item := e.queue[i]
	e.queue = slices.Delete(e.queue, i, i+1)
	e.emit(Event{Type: EventUnqueued, Item: item})
	return item, nil
}

// Fail reports itemId as unplayable: a pending item is unqueued, the current one is skipped.
func (e *Engine) Fail(itemId int) error {
	if e.current != nil && e.current.ItemId == itemId {
		e.emit(Event{Type: EventFailed, Item: *e.current, Current: true})
		e.Skip()
		return nil
	}

	item, err := e.Unqueue(itemId)
	if err != nil {
		return err
	}

	e.emit(Event{Type: EventFailed, Item: item})
	return nil
}

func (e *Engine) Current() (domain.QueueItem, bool) {
	if e.current == nil {
		return domain.QueueItem{}, false
	}
	return *e.current, true
}

// Elapsed is how far into the current item playback is. It is negative during the startup delay.
func (e *Engine) Elapsed() time.Duration {
	if e.current == nil {
		return 0
	}
	return e.sched.Now().Sub(e.startedAt)
}

func (e *Engine) Queue() []domain.QueueItem {
	return slices.Clone(e.queue)
}

// Item looks up a pending item.
func (e *Engine) Item(itemId int) (domain.QueueItem, bool) {
	i := e.indexOf(itemId)
	if i < 0 {
		return domain.QueueItem{}, false
	}
	return e.queue[i], true
}

// AddVote records a skip vote for the current item. It reports whether the vote is new.
func (e *Engine) AddVote(userId string) bool {
	if e.current == nil {
		return false
	}
	if _, ok := e.votes[userId]; ok {
		return false
	}

	e.votes[userId] = struct{}{}
	return true
}

func (e *Engine) VoteCount() int {
	return len(e.votes)
}

func (e *Engine) promote() {
	item := e.queue[0]
	e.queue = slices.Delete(e.queue, 0, 1)
	e.start(item, e.sched.Now().Add(e.startupDelay))
	e.emit(Event{Type: EventPlaying, Item: item})
}

func (e *Engine) start(item domain.QueueItem, startedAt time.Time) {
	e.stopClock()
	clear(e.votes)

	e.current = &item
	e.startedAt = startedAt

	remaining := max(startedAt.Add(item.Media.Duration).Sub(e.sched.Now()), 0)
	itemId := item.ItemId
	e.endTask = e.sched.AfterFunc(remaining, func() {
		if e.current != nil && e.current.ItemId == itemId {
			e.Skip()
		}
	})
}

func (e *Engine) stopClock() {
	if e.endTask != nil {
		e.endTask.Stop()
		e.endTask = nil
	}
}

func (e *Engine) indexOf(itemId int) int {
	return slices.IndexFunc(e.queue, func(item domain.QueueItem) bool {
		return item.ItemId == itemId
	})
}

func (e *Engine) emit(event Event) {
	e.onEvent(event)
}
