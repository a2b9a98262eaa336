package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/pkg/rest"
)

// readRequest decodes and validates the body. It writes the error response itself and
// reports whether the handler may continue.
func (c controller) readRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := rest.ReadJSON(r, req); err != nil {
		c.logger.DebugContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return false
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.DebugContext(r.Context(), "validation failed", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return false
	}

	return true
}

type queueRequest struct {
	Path string `json:"path" validate:"required,max=256"`
}

func (c controller) queue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	item, err := c.zoneService.Queue(r.Context(), &service.QueueParams{
		Path:     req.Path,
		SenderId: c.getUserIdFromCtx(r.Context()),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"item": item})
}

func (c controller) queueBanger(w http.ResponseWriter, r *http.Request) {
	item, err := c.zoneService.Queue(r.Context(), &service.QueueParams{
		Banger:   true,
		SenderId: c.getUserIdFromCtx(r.Context()),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"item": item})
}

type skipRequest struct {
	ItemId int `json:"itemId" validate:"gte=1"`
}

func (c controller) skip(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.zoneService.Skip(r.Context(), &service.SkipParams{
		ItemId:   req.ItemId,
		SenderId: c.getUserIdFromCtx(r.Context()),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{
		"skipped":  resp.Skipped,
		"votes":    resp.Votes,
		"required": resp.Required,
	})
}

func (c controller) unqueue(w http.ResponseWriter, r *http.Request) {
	itemId, err := strconv.Atoi(chi.URLParam(r, "item-id"))
	if err != nil || itemId < 1 {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": "invalid item id"})
		return
	}

	if err := c.zoneService.Unqueue(r.Context(), &service.UnqueueParams{
		ItemId:   itemId,
		SenderId: c.getUserIdFromCtx(r.Context()),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type echoRequest struct {
	Text     string    `json:"text" validate:"max=2048"`
	Position []float64 `json:"position" validate:"required,min=2,max=3"`
}

func (c controller) addEcho(w http.ResponseWriter, r *http.Request) {
	var req echoRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	if err := c.zoneService.Echo(r.Context(), &service.EchoParams{
		Text:     req.Text,
		Position: domain.Position(req.Position),
		SenderId: c.getUserIdFromCtx(r.Context()),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type removeEchoRequest struct {
	Position []float64 `json:"position" validate:"required,min=2,max=3"`
}

func (c controller) removeEcho(w http.ResponseWriter, r *http.Request) {
	var req removeEchoRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	if err := c.zoneService.Echo(r.Context(), &service.EchoParams{
		Position: domain.Position(req.Position),
		SenderId: c.getUserIdFromCtx(r.Context()),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type authorizeAdminRequest struct {
	Password string `json:"password" validate:"required"`
}

func (c controller) authorizeAdmin(w http.ResponseWriter, r *http.Request) {
	var req authorizeAdminRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	if err := c.zoneService.AuthorizeAdmin(r.Context(), &service.AuthorizeAdminParams{
		Password: req.Password,
		SenderId: c.getUserIdFromCtx(r.Context()),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type commandRequest struct {
	Name string   `json:"name" validate:"required,max=32"`
	Args []string `json:"args" validate:"max=8"`
}

func (c controller) command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	cmd, err := service.ParseCommand(req.Name, req.Args)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	if err := c.zoneService.RunCommand(r.Context(), &service.CommandParams{
		Command:  cmd,
		SenderId: c.getUserIdFromCtx(r.Context()),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
