package service

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/playback"
)

func (s *service) handlePlaybackEvent(event playback.Event) {
	switch event.Type {
	case playback.EventQueued:
		s.sendAll("queue", map[string]any{"items": []QueueItem{mapQueueItem(event.Item)}})
	case playback.EventPlaying:
		s.sendAll("play", s.playState())
	case playback.EventStopped:
		s.sendAll("play", Play{})
	case playback.EventUnqueued:
		s.sendAll("unqueue", map[string]any{"itemId": event.Item.ItemId})
	case playback.EventFailed:
		s.logger.Info("media failed", "item_id", event.Item.ItemId, "source", event.Item.Media.Source.String())
		if event.Current {
			s.sendStatus(fmt.Sprintf("%s is unavailable and was skipped", event.Item.Media.Title))
		}
	}
}

type QueueParams struct {
	Path     string
	Banger   bool
	SenderId string
}

// Queue resolves the requested media outside the lock, then re-checks the requester and
// the queue limits before enqueueing.
func (s *service) Queue(ctx context.Context, params *QueueParams) (QueueItem, error) {
	if !params.Banger {
		if err := validation.ValidateStructWithContext(ctx, params,
			validation.Field(&params.Path, PathRule...),
		); err != nil {
			return QueueItem{}, err
		}
	}

	s.mu.Lock()
	if _, err := s.checkCanQueue(params.SenderId); err != nil {
		s.mu.Unlock()
		return QueueItem{}, err
	}
	s.mu.Unlock()

	var media domain.Media
	var err error
	if params.Banger {
		media, err = s.resolver.Banger(ctx)
	} else {
		media, err = s.resolver.Resolve(ctx, params.Path)
	}
	if err != nil {
		return QueueItem{}, fmt.Errorf("failed to resolve media: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.checkCanQueue(params.SenderId)
	if err != nil {
		return QueueItem{}, err
	}

	queue := s.engine.Queue()
	perAddress := 0
	for _, item := range queue {
		if item.Media.Source == media.Source {
			return QueueItem{}, ErrAlreadyQueued
		}
		if item.Info.Ip == user.Address {
			perAddress++
		}
	}

	exempt := s.eventMode && user.IsDJ()
	if !exempt && s.cfg.QueueLimit > 0 && perAddress >= s.cfg.QueueLimit {
		return QueueItem{}, ErrQueueLimitReached
	}

	item := s.engine.QueueMedia(media, domain.QueueInfo{
		UserId: user.Id,
		Ip:     user.Address,
		Banger: params.Banger,
	})
	s.logger.InfoContext(ctx, "media queued", "item_id", item.ItemId, "source", media.Source.String())

	return mapQueueItem(item), nil
}

// checkCanQueue must be called with s.mu held.
func (s *service) checkCanQueue(senderId string) (*domain.User, error) {
	user, err := s.userBySender(senderId)
	if err != nil {
		return nil, err
	}
	if s.eventMode && !user.IsDJ() {
		return nil, ErrPermissionDenied
	}

	return user, nil
}

type UnqueueParams struct {
	ItemId   int
	SenderId string
}

// Unqueue removes a pending item. Users may remove their own items, admins any item.
func (s *service) Unqueue(ctx context.Context, params *UnqueueParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userBySender(params.SenderId)
	if err != nil {
		return err
	}

	item, ok := s.engine.Item(params.ItemId)
	if !ok {
		return ErrItemNotFound
	}
	if item.Info.UserId != user.Id && !user.IsAdmin() {
		return ErrPermissionDenied
	}

	if _, err := s.engine.Unqueue(params.ItemId); err != nil {
		return ErrItemNotFound
	}

	s.logger.InfoContext(ctx, "media unqueued", "item_id", params.ItemId, "user_id", user.Id)
	return nil
}
