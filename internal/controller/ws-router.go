package controller

import (
	"github.com/sharetube/zone/internal/transport"
	"github.com/sharetube/zone/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter[*transport.Channel] {
	mux := wsrouter.New[*transport.Channel]()
	mux.SetValidator(c.validate.Check)
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw(), c.wsAuthMw())

	wsrouter.Handle(mux, "join", c.handleJoin)
	wsrouter.Handle(mux, "heartbeat", c.handleHeartbeat)
	wsrouter.Handle(mux, "user", c.handleUser)
	wsrouter.Handle(mux, "chat", c.handleChat)
	wsrouter.Handle(mux, "echo", c.handleEcho)
	wsrouter.Handle(mux, "command", c.handleCommand)
	wsrouter.Handle(mux, "queue", c.handleQueue)
	wsrouter.Handle(mux, "skip", c.handleSkip)
	wsrouter.Handle(mux, "unqueue", c.handleUnqueue)

	return mux
}
