package service

import (
	"context"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/zone/internal/domain"
)

type EchoParams struct {
	Text     string
	Position domain.Position
	SenderId string
}

// Echo writes an echo at a position, or clears it when the text is empty. Echoes written by
// an admin can only be replaced or cleared by an admin.
func (s *service) Echo(ctx context.Context, params *EchoParams) error {
	if err := validation.ValidateStructWithContext(ctx, params,
		validation.Field(&params.Text, EchoTextRule...),
		validation.Field(&params.Position, validation.Required, validation.Length(2, 3)),
	); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userBySender(params.SenderId)
	if err != nil {
		return err
	}

	existing, ok := s.registry.Echo(params.Position)
	if ok && existing.AuthoredByAdmin() && !user.IsAdmin() {
		return ErrPermissionDenied
	}

	if params.Text == "" {
		if !ok {
			return nil
		}
		s.registry.RemoveEcho(params.Position)
		s.sendAll("echoes", Echoes{Removed: []domain.Position{existing.Position}})
		return nil
	}

	echo := &domain.Echo{
		Position: slices.Clone(params.Position),
		Author: domain.Author{
			Name:   user.Name,
			Avatar: user.Avatar,
			Tags:   slices.Clone(user.Tags),
		},
		Text: params.Text,
	}
	s.registry.SetEcho(echo)
	s.sendAll("echoes", Echoes{Added: []domain.Echo{*echo}})

	return nil
}
