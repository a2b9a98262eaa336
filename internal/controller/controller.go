package controller

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/gorilla/websocket"
	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/internal/transport"
	"github.com/sharetube/zone/pkg/validator"
	"github.com/sharetube/zone/pkg/wsrouter"
)

type iZoneService interface {
	IsBanned(addr string) bool
	Authenticate(token string) (string, error)
	Accept(ctx context.Context, conn service.Conn) error
	Join(ctx context.Context, conn service.Conn, params *service.JoinParams) (service.JoinResponse, error)
	Disconnect(ctx context.Context, conn service.Conn, code int)
	UserIdByConn(conn service.Conn) (string, error)
	UpdateUser(ctx context.Context, params *service.UpdateUserParams) error
	Chat(ctx context.Context, params *service.ChatParams) error
	Echo(ctx context.Context, params *service.EchoParams) error
	Queue(ctx context.Context, params *service.QueueParams) (service.QueueItem, error)
	Unqueue(ctx context.Context, params *service.UnqueueParams) error
	Skip(ctx context.Context, params *service.SkipParams) (service.SkipResponse, error)
	RunCommand(ctx context.Context, params *service.CommandParams) error
	AuthorizeAdmin(ctx context.Context, params *service.AuthorizeAdminParams) error
}

type controller struct {
	zoneService  iZoneService
	upgrader     websocket.Upgrader
	validate     *validator.Validator
	wsRouter     *wsrouter.WSRouter[*transport.Channel]
	transportCfg transport.Config
	// peers allowed to set X-Forwarded-For and X-Real-IP
	trustedProxies []netip.Prefix
	logger         *slog.Logger
}

type Params struct {
	ZoneService    iZoneService
	Transport      transport.Config
	TrustedProxies []netip.Prefix
	Logger         *slog.Logger
}

func NewController(params *Params) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		zoneService:    params.ZoneService,
		validate:       validator.NewValidator(),
		transportCfg:   params.Transport,
		trustedProxies: params.TrustedProxies,
		logger:         params.Logger,
	}
	c.wsRouter = c.getWSRouter()

	return c
}
