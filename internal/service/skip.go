package service

import (
	"context"
	"fmt"
	"math"
)

type SkipParams struct {
	ItemId   int
	SenderId string
}

type SkipResponse struct {
	Skipped  bool
	Votes    int
	Required int
}

// Skip force-skips the current item when the sender may, and counts a vote otherwise.
// The item id must name the current item so that stale requests do not skip its successor.
func (s *service) Skip(ctx context.Context, params *SkipParams) (SkipResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userBySender(params.SenderId)
	if err != nil {
		return SkipResponse{}, err
	}

	current, ok := s.engine.Current()
	if !ok {
		return SkipResponse{}, ErrNothingPlaying
	}
	if current.ItemId != params.ItemId {
		return SkipResponse{}, ErrItemNotFound
	}

	force := user.IsAdmin()
	if s.eventMode {
		force = force || user.IsDJ()
	} else {
		force = force || current.Info.UserId == user.Id
	}

	if force {
		s.logger.InfoContext(ctx, "item skipped", "item_id", current.ItemId, "user_id", user.Id)
		s.engine.Skip()
		s.sendStatus(fmt.Sprintf("%s skipped %s", user.Name, current.Media.Title))
		return SkipResponse{Skipped: true}, nil
	}

	required := s.votesRequired()
	if !s.engine.AddVote(user.Id) {
		return SkipResponse{Votes: s.engine.VoteCount(), Required: required}, nil
	}

	votes := s.engine.VoteCount()
	if votes >= required {
		s.logger.InfoContext(ctx, "item vote skipped", "item_id", current.ItemId, "votes", votes)
		s.engine.Skip()
		s.sendStatus(fmt.Sprintf("voted to skip %s", current.Media.Title))
		return SkipResponse{Skipped: true, Votes: votes, Required: required}, nil
	}

	s.sendStatus(fmt.Sprintf("%s voted to skip %s (%d/%d)", user.Name, current.Media.Title, votes, required))
	return SkipResponse{Votes: votes, Required: required}, nil
}

// votesRequired is ceil(participants * threshold), where participants are users with a live channel.
func (s *service) votesRequired() int {
	participants := 0
	for _, user := range s.registry.Users() {
		if s.conns.ConnCount(user.Id) > 0 {
			participants++
		}
	}

	return VotesRequired(participants, s.cfg.VoteThreshold)
}

// VotesRequired is ceil(participants * threshold) with a floor of one, so it differs from the
// plain formula when the product rounds to zero (no participants or a tiny threshold).
// The epsilon absorbs float error such as 3*0.1 > 0.3.
func VotesRequired(participants int, threshold float64) int {
	required := int(math.Ceil(float64(participants)*threshold - 1e-9))
	return max(required, 1)
}
