package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrInvalidFormat = errors.New("invalid payload format")
)

// HandlerFunc handles one decoded message received on a connection of type C.
type HandlerFunc[C any, T any] func(ctx context.Context, conn C, payload T) error

type rawHandler[C any] func(ctx context.Context, conn C, payload json.RawMessage) error

// Middleware wraps every handler registered on a router. The payload is already decoded.
type Middleware[C any] func(next HandlerFunc[C, any]) HandlerFunc[C, any]

// Validator checks a decoded payload before it reaches its handler.
type Validator func(payload any) error

type WSRouter[C any] struct {
	routes      map[string]rawHandler[C]
	middlewares []Middleware[C]
	validate    Validator
}

func New[C any]() *WSRouter[C] {
	return &WSRouter[C]{routes: make(map[string]rawHandler[C])}
}

func (r *WSRouter[C]) Use(mw ...Middleware[C]) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *WSRouter[C]) SetValidator(v Validator) {
	r.validate = v
}

// Handle registers handler for messageType. The raw payload is decoded into T,
// validated and passed through the router middlewares.
func Handle[C any, T any](r *WSRouter[C], messageType string, handler HandlerFunc[C, T]) {
	var h HandlerFunc[C, any] = func(ctx context.Context, conn C, payload any) error {
		return handler(ctx, conn, payload.(T))
	}
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}

	r.routes[messageType] = func(ctx context.Context, conn C, raw json.RawMessage) error {
		var payload T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
			}
		}

		if r.validate != nil {
			if err := r.validate(&payload); err != nil {
				return err
			}
		}

		return h(ctx, conn, payload)
	}
}

// Dispatch routes one framed message to its handler.
func (r *WSRouter[C]) Dispatch(ctx context.Context, conn C, messageType string, payload json.RawMessage) error {
	handler, ok := r.routes[messageType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, messageType)
	}

	ctx = context.WithValue(ctx, messageTypeKey, messageType)
	return handler(ctx, conn, payload)
}
