package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/zone/internal/transport"
	"github.com/sharetube/zone/pkg/ctxlogger"
	"github.com/sharetube/zone/pkg/wsrouter"
)

func (c controller) wsRequestIdWSMw() wsrouter.Middleware[*transport.Channel] {
	return func(next wsrouter.HandlerFunc[*transport.Channel, any]) wsrouter.HandlerFunc[*transport.Channel, any] {
		return func(ctx context.Context, conn *transport.Channel, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", uuid.NewString()))
			return next(ctx, conn, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware[*transport.Channel] {
	return func(next wsrouter.HandlerFunc[*transport.Channel, any]) wsrouter.HandlerFunc[*transport.Channel, any] {
		return func(ctx context.Context, conn *transport.Channel, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received")

			start := time.Now()
			err := next(ctx, conn, payload)

			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
				"error", err,
			)

			return err
		}
	}
}

// wsAuthMw resolves the user bound to the channel. Only join and heartbeat are allowed
// before the channel has joined.
func (c controller) wsAuthMw() wsrouter.Middleware[*transport.Channel] {
	return func(next wsrouter.HandlerFunc[*transport.Channel, any]) wsrouter.HandlerFunc[*transport.Channel, any] {
		return func(ctx context.Context, conn *transport.Channel, payload any) error {
			switch wsrouter.GetMessageTypeFromCtx(ctx) {
			case "join", "heartbeat":
				return next(ctx, conn, payload)
			}

			userId, err := c.zoneService.UserIdByConn(conn)
			if err != nil {
				return err
			}

			ctx = context.WithValue(ctx, userIdCtxKey, userId)
			ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", userId))
			return next(ctx, conn, payload)
		}
	}
}
