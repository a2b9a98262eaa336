package service

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/zone/internal/domain"
)

// Accept refuses channels from banned addresses before they can join.
func (s *service) Accept(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, banned := s.bans[conn.Addr()]; banned {
		s.logger.InfoContext(ctx, "refused banned address", "addr", conn.Addr())
		s.reject(conn, CloseBanned, ErrBanned)
		return ErrBanned
	}

	return nil
}

type JoinParams struct {
	Name     string
	Token    string
	Password string
	Avatar   string
}

type JoinResponse struct {
	UserId  string
	Token   string
	Resumed bool
}

// Join binds conn to a user. A token of a live user resumes that user silently; otherwise
// a new user is created and announced.
func (s *service) Join(ctx context.Context, conn Conn, params *JoinParams) (JoinResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, banned := s.bans[conn.Addr()]; banned {
		s.reject(conn, CloseBanned, ErrBanned)
		return JoinResponse{}, ErrBanned
	}

	if s.passwordHash != nil && !checkPassword(s.passwordHash, params.Password) {
		s.reject(conn, CloseWrongPassword, ErrWrongPassword)
		return JoinResponse{}, ErrWrongPassword
	}

	if _, err := s.conns.GetUserId(conn); err == nil {
		return JoinResponse{}, ErrAlreadyJoined
	}

	if params.Token != "" {
		if userId, err := s.resolveToken(params.Token); err == nil {
			return s.resume(ctx, conn, userId)
		}
		s.logger.DebugContext(ctx, "resume token rejected, joining as new user")
	}

	if err := validation.ValidateStructWithContext(ctx, params,
		validation.Field(&params.Name, NameRule...),
		validation.Field(&params.Avatar, AvatarRule...),
	); err != nil {
		return JoinResponse{}, err
	}

	userId := uuid.NewString()
	token, err := s.issueToken(userId)
	if err != nil {
		return JoinResponse{}, err
	}

	user := s.registry.GetUser(userId)
	user.Name = params.Name
	user.Avatar = params.Avatar
	user.Address = conn.Addr()

	if err := s.conns.Add(conn, userId); err != nil {
		return JoinResponse{}, fmt.Errorf("failed to bind conn: %w", err)
	}

	s.logger.InfoContext(ctx, "user joined", "user_id", userId, "name", user.Name)
	s.sendAllExcept(userId, "user", user.State())
	s.sendState(conn, user, token)

	return JoinResponse{UserId: userId, Token: token}, nil
}

func (s *service) resume(ctx context.Context, conn Conn, userId string) (JoinResponse, error) {
	user, _ := s.registry.LookupUser(userId)
	user.CancelGrace()
	user.Address = conn.Addr()

	if err := s.conns.Add(conn, userId); err != nil {
		return JoinResponse{}, fmt.Errorf("failed to bind conn: %w", err)
	}

	token := s.userTokens[userId]
	s.logger.InfoContext(ctx, "user resumed", "user_id", userId)
	s.sendState(conn, user, token)

	return JoinResponse{UserId: userId, Token: token, Resumed: true}, nil
}

// Disconnect unbinds conn. A clean close removes its user at once; any other code gives the
// user a grace period to rebind.
func (s *service) Disconnect(ctx context.Context, conn Conn, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userId, err := s.conns.RemoveByConn(conn)
	if err != nil {
		return
	}

	if s.conns.ConnCount(userId) > 0 {
		return
	}

	user, ok := s.registry.LookupUser(userId)
	if !ok {
		return
	}

	if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
		s.removeUser(ctx, userId)
		return
	}

	s.logger.DebugContext(ctx, "user in grace period", "user_id", userId, "code", code)
	user.SetGrace(s.sched.AfterFunc(s.cfg.GracePeriod, func() {
		if s.conns.ConnCount(userId) == 0 {
			s.removeUser(ctx, userId)
		}
	}))
}

// removeUser drops the user, revokes its token and announces the leave. Must be called with s.mu held.
func (s *service) removeUser(ctx context.Context, userId string) {
	user, ok := s.registry.LookupUser(userId)
	if !ok {
		return
	}

	user.CancelGrace()
	s.conns.RemoveByUserId(userId)
	s.registry.RemoveUser(userId)
	s.revokeToken(userId)

	s.logger.InfoContext(ctx, "user left", "user_id", userId)
	s.sendAll("leave", map[string]any{"userId": userId})
}

// userBySender returns the live user issuing a request. Must be called with s.mu held.
func (s *service) userBySender(senderId string) (*domain.User, error) {
	user, ok := s.registry.LookupUser(senderId)
	if !ok {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// UserIdByConn returns the user conn is bound to.
func (s *service) UserIdByConn(conn Conn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userId, err := s.conns.GetUserId(conn)
	if err != nil {
		return "", ErrNotJoined
	}

	return userId, nil
}

func (s *service) reject(conn Conn, code int, err error) {
	conn.Send("reject", map[string]any{"text": err.Error()})
	conn.Close(code, err.Error())
}

type UpdateUserParams struct {
	Name     *string
	Avatar   *string
	Position domain.Position
	Emotes   []string
	SenderId string
}

// UpdateUser applies the set fields and broadcasts them. Nil slices leave the field unchanged.
func (s *service) UpdateUser(ctx context.Context, params *UpdateUserParams) error {
	if err := validation.ValidateStructWithContext(ctx, params,
		validation.Field(&params.Name, validation.NilOrNotEmpty, validation.RuneLength(1, 32)),
		validation.Field(&params.Avatar, AvatarRule...),
		validation.Field(&params.Position, PositionRule...),
		validation.Field(&params.Emotes, EmotesRule...),
	); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.userBySender(params.SenderId)
	if err != nil {
		return err
	}

	if params.Name != nil {
		user.Name = *params.Name
	}
	if params.Avatar != nil {
		user.Avatar = *params.Avatar
	}
	var position domain.Position
	if len(params.Position) > 0 {
		position = append(domain.Position(nil), params.Position...)
		user.Position = position
	}
	var emotes []string
	if params.Emotes != nil {
		emotes = dedupe(params.Emotes)
		user.Emotes = emotes
	}

	s.sendUserPatch(user.Id, map[string]any{
		"name":     params.Name,
		"avatar":   params.Avatar,
		"position": position,
		"emotes":   emotes,
	})
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}

	return result
}

var errEmptyChat = errors.New("empty chat message")

type ChatParams struct {
	Text     string
	SenderId string
}

// Chat broadcasts text truncated to the configured limit.
func (s *service) Chat(ctx context.Context, params *ChatParams) error {
	text := truncate(params.Text, s.cfg.ChatLimit)
	if text == "" {
		return errEmptyChat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.userBySender(params.SenderId); err != nil {
		return err
	}

	s.sendAll("chat", map[string]any{"text": text, "userId": params.SenderId})
	return nil
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit])
	}

	return text
}
