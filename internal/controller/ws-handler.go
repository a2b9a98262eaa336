package controller

import (
	"context"

	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/internal/transport"
)

type JoinInput struct {
	Name     string `json:"name" validate:"required,max=32"`
	Token    string `json:"token"`
	Password string `json:"password"`
	Avatar   string `json:"avatar" validate:"max=16384"`
}

func (c controller) handleJoin(ctx context.Context, conn *transport.Channel, input JoinInput) error {
	resp, err := c.zoneService.Join(ctx, conn, &service.JoinParams{
		Name:     input.Name,
		Token:    input.Token,
		Password: input.Password,
		Avatar:   input.Avatar,
	})
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "channel joined", "user_id", resp.UserId, "resumed", resp.Resumed)
	return nil
}

type UserInput struct {
	Name     *string   `json:"name" validate:"omitempty,max=32"`
	Avatar   *string   `json:"avatar" validate:"omitempty,max=16384"`
	Position []float64 `json:"position" validate:"omitempty,min=2,max=3"`
	Emotes   []string  `json:"emotes" validate:"omitempty,max=4"`
}

func (c controller) handleUser(ctx context.Context, conn *transport.Channel, input UserInput) error {
	return c.zoneService.UpdateUser(ctx, &service.UpdateUserParams{
		Name:     input.Name,
		Avatar:   input.Avatar,
		Position: domain.Position(input.Position),
		Emotes:   input.Emotes,
		SenderId: c.getUserIdFromCtx(ctx),
	})
}

type ChatInput struct {
	Text string `json:"text" validate:"required"`
}

func (c controller) handleChat(ctx context.Context, conn *transport.Channel, input ChatInput) error {
	return c.zoneService.Chat(ctx, &service.ChatParams{
		Text:     input.Text,
		SenderId: c.getUserIdFromCtx(ctx),
	})
}

type EchoInput struct {
	Text     string    `json:"text"`
	Position []float64 `json:"position" validate:"required,min=2,max=3"`
}

func (c controller) handleEcho(ctx context.Context, conn *transport.Channel, input EchoInput) error {
	return c.zoneService.Echo(ctx, &service.EchoParams{
		Text:     input.Text,
		Position: domain.Position(input.Position),
		SenderId: c.getUserIdFromCtx(ctx),
	})
}

type CommandInput struct {
	Name string   `json:"name" validate:"required,max=32"`
	Args []string `json:"args" validate:"max=8"`
}

func (c controller) handleCommand(ctx context.Context, conn *transport.Channel, input CommandInput) error {
	cmd, err := service.ParseCommand(input.Name, input.Args)
	if err != nil {
		return err
	}

	return c.zoneService.RunCommand(ctx, &service.CommandParams{
		Command:  cmd,
		SenderId: c.getUserIdFromCtx(ctx),
	})
}

type QueueItemInput struct {
	Path   string `json:"path" validate:"required_without=Banger,max=256"`
	Banger bool   `json:"banger"`
}

type QueueInput struct {
	Items []QueueItemInput `json:"items" validate:"required,min=1,max=16,dive"`
}

// handleQueue enqueues items in order. Each refused item is reported on its own and does
// not stop the rest.
func (c controller) handleQueue(ctx context.Context, conn *transport.Channel, input QueueInput) error {
	for _, item := range input.Items {
		if _, err := c.zoneService.Queue(ctx, &service.QueueParams{
			Path:     item.Path,
			Banger:   item.Banger,
			SenderId: c.getUserIdFromCtx(ctx),
		}); err != nil {
			c.logger.DebugContext(ctx, "queue item refused", "path", item.Path, "error", err)
			conn.Send("status", map[string]any{"text": err.Error()})
		}
	}

	return nil
}

type SkipInput struct {
	ItemId int `json:"itemId" validate:"gte=1"`
}

func (c controller) handleSkip(ctx context.Context, conn *transport.Channel, input SkipInput) error {
	_, err := c.zoneService.Skip(ctx, &service.SkipParams{
		ItemId:   input.ItemId,
		SenderId: c.getUserIdFromCtx(ctx),
	})
	return err
}

type UnqueueInput struct {
	ItemId int `json:"itemId" validate:"gte=1"`
}

func (c controller) handleUnqueue(ctx context.Context, conn *transport.Channel, input UnqueueInput) error {
	return c.zoneService.Unqueue(ctx, &service.UnqueueParams{
		ItemId:   input.ItemId,
		SenderId: c.getUserIdFromCtx(ctx),
	})
}

type HeartbeatInput struct{}

func (c controller) handleHeartbeat(ctx context.Context, conn *transport.Channel, input HeartbeatInput) error {
	conn.Send("heartbeat", map[string]any{})
	return nil
}
