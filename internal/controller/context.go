package controller

import "context"

type contextKey int

const (
	userIdCtxKey contextKey = iota
)

func (c controller) getUserIdFromCtx(ctx context.Context) string {
	userId, ok := ctx.Value(userIdCtxKey).(string)
	if !ok {
		return ""
	}

	return userId
}
