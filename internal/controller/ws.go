package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/internal/transport"
	"github.com/sharetube/zone/pkg/ctxlogger"
)

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	ch := transport.New(conn, c.clientIp(r), c.transportCfg, c.logger)
	ch.Start()

	// grace tasks outlive the request, so they must not inherit its cancellation
	ctx := context.WithoutCancel(r.Context())
	ctx = ctxlogger.AppendCtx(ctx, slog.String("channel_id", ch.ID()))
	c.logger.InfoContext(ctx, "channel opened", "addr", ch.Addr())

	if err := c.zoneService.Accept(ctx, ch); err != nil {
		for range ch.Events() {
		}
		return
	}

	for event := range ch.Events() {
		switch event.Kind {
		case transport.EventMessage:
			c.handleMessage(ctx, ch, event.Message)
		case transport.EventError:
			c.logger.DebugContext(ctx, "channel error", "error", event.Err)
		case transport.EventClose:
			c.logger.InfoContext(ctx, "channel closed", "code", event.Code)
			c.zoneService.Disconnect(ctx, ch, event.Code)
		}
	}
}

// handleMessage routes one message and reports failures to the sender only. Malformed or
// invalid input gets a reject, refusals get a status.
func (c controller) handleMessage(ctx context.Context, ch *transport.Channel, msg transport.Message) {
	err := c.wsRouter.Dispatch(ctx, ch, msg.Type, msg.Payload)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, service.ErrBanned), errors.Is(err, service.ErrWrongPassword):
		// the coordinator has already rejected and closed the channel
	case isValidationError(err), errors.Is(err, service.ErrNotJoined):
		c.logger.DebugContext(ctx, "message rejected", "type", msg.Type, "error", err)
		ch.Send("reject", map[string]any{"text": err.Error()})
	default:
		c.logger.DebugContext(ctx, "message refused", "type", msg.Type, "error", err)
		ch.Send("status", map[string]any{"text": err.Error()})
	}
}
