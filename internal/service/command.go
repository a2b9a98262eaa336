package service

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/zone/internal/domain"
)

// Command is one of the admin commands below.
type Command interface {
	command()
}

type BanCommand struct {
	Name   string
	Reason string
}

type SkipCommand struct{}

// ModeCommand sets event mode. A nil On toggles it.
type ModeCommand struct {
	On *bool
}

type DJAddCommand struct {
	Name string
}

type DJDelCommand struct {
	Name string
}

type DespawnCommand struct {
	Name string
}

func (BanCommand) command()     {}
func (SkipCommand) command()    {}
func (ModeCommand) command()    {}
func (DJAddCommand) command()   {}
func (DJDelCommand) command()   {}
func (DespawnCommand) command() {}

// ParseCommand builds a typed command from its name and arguments.
func ParseCommand(name string, args []string) (Command, error) {
	arg := func(i int) string {
		if i < len(args) {
			return strings.TrimSpace(args[i])
		}
		return ""
	}

	var cmd Command
	switch name {
	case "ban":
		reason := ""
		if len(args) > 1 {
			reason = strings.TrimSpace(strings.Join(args[1:], " "))
		}
		cmd = &BanCommand{Name: arg(0), Reason: reason}
	case "skip":
		cmd = &SkipCommand{}
	case "mode":
		mode := &ModeCommand{}
		switch arg(0) {
		case "":
		case "on":
			on := true
			mode.On = &on
		case "off":
			off := false
			mode.On = &off
		default:
			return nil, validation.Errors{"args": fmt.Errorf("mode must be on or off")}
		}
		cmd = mode
	case "dj-add":
		cmd = &DJAddCommand{Name: arg(0)}
	case "dj-del":
		cmd = &DJDelCommand{Name: arg(0)}
	case "despawn":
		cmd = &DespawnCommand{Name: arg(0)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	return cmd, nil
}

func validateCommand(cmd Command) error {
	switch c := cmd.(type) {
	case *BanCommand:
		return validation.ValidateStruct(c,
			validation.Field(&c.Name, NameRule...),
			validation.Field(&c.Reason, validation.RuneLength(0, 256)),
		)
	case *DJAddCommand:
		return validation.ValidateStruct(c, validation.Field(&c.Name, NameRule...))
	case *DJDelCommand:
		return validation.ValidateStruct(c, validation.Field(&c.Name, NameRule...))
	case *DespawnCommand:
		return validation.ValidateStruct(c, validation.Field(&c.Name, NameRule...))
	}

	return nil
}

type CommandParams struct {
	Command  Command
	SenderId string
}

// RunCommand executes an admin command on behalf of the sender.
func (s *service) RunCommand(ctx context.Context, params *CommandParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, err := s.userBySender(params.SenderId)
	if err != nil {
		return err
	}
	if !admin.IsAdmin() {
		return ErrPermissionDenied
	}

	s.logger.InfoContext(ctx, "running command", "user_id", admin.Id, "command", fmt.Sprintf("%T", params.Command))

	switch cmd := params.Command.(type) {
	case *BanCommand:
		return s.ban(ctx, admin, cmd)
	case *SkipCommand:
		current, ok := s.engine.Current()
		if !ok {
			return ErrNothingPlaying
		}
		s.engine.Skip()
		s.sendStatus(fmt.Sprintf("%s skipped %s", admin.Name, current.Media.Title))
	case *ModeCommand:
		s.eventMode = !s.eventMode
		if cmd.On != nil {
			s.eventMode = *cmd.On
		}
		if s.eventMode {
			s.sendStatus("event mode on")
		} else {
			s.sendStatus("event mode off")
		}
	case *DJAddCommand:
		target, err := s.userByName(cmd.Name)
		if err != nil {
			return err
		}
		if target.AddTag(domain.TagDJ) {
			s.sendUserPatch(target.Id, map[string]any{"tags": target.State().Tags})
		}
	case *DJDelCommand:
		target, err := s.userByName(cmd.Name)
		if err != nil {
			return err
		}
		if target.RemoveTag(domain.TagDJ) {
			s.sendUserPatch(target.Id, map[string]any{"tags": target.State().Tags})
		}
	case *DespawnCommand:
		target, err := s.userByName(cmd.Name)
		if err != nil {
			return err
		}
		target.Position = nil
		s.sendUserPatch(target.Id, map[string]any{"position": nil}, "position")
	default:
		return ErrUnknownCommand
	}

	return nil
}

// userByName must be called with s.mu held.
func (s *service) userByName(name string) (*domain.User, error) {
	user, ok := s.registry.FindUserByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}

	return user, nil
}

type AuthorizeAdminParams struct {
	Password string
	SenderId string
}

// AuthorizeAdmin grants the admin tag to a sender that knows the admin password.
func (s *service) AuthorizeAdmin(ctx context.Context, params *AuthorizeAdminParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userBySender(params.SenderId)
	if err != nil {
		return err
	}

	if s.adminPasswordHash == nil || !checkPassword(s.adminPasswordHash, params.Password) {
		s.logger.WarnContext(ctx, "admin authorization failed", "user_id", user.Id)
		return ErrWrongPassword
	}

	if user.AddTag(domain.TagAdmin) {
		s.sendUserPatch(user.Id, map[string]any{"tags": user.State().Tags})
	}

	return nil
}
