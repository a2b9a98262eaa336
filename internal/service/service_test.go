package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/zone/internal/domain"
	"github.com/sharetube/zone/internal/media"
	"github.com/sharetube/zone/pkg/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	gracePeriod  = 10 * time.Second
	startupDelay = time.Second
)

type sentMessage struct {
	Type    string
	Payload map[string]any
}

type fakeConn struct {
	mu        sync.Mutex
	id        string
	addr      string
	sent      []sentMessage
	closed    bool
	closeCode int
}

var connSeq int

func newConn(addr string) *fakeConn {
	connSeq++
	return &fakeConn{id: fmt.Sprintf("conn-%d", connSeq), addr: addr}
}

func (c *fakeConn) ID() string   { return c.id }
func (c *fakeConn) Addr() string { return c.addr }

func (c *fakeConn) Send(messageType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		panic(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.sent = append(c.sent, sentMessage{Type: messageType, Payload: decoded})
}

func (c *fakeConn) Close(code int, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
}

func (c *fakeConn) messages(messageType string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []map[string]any
	for _, m := range c.sent {
		if m.Type == messageType {
			result = append(result, m.Payload)
		}
	}
	return result
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		types = append(types, m.Type)
	}
	return types
}

func (c *fakeConn) last(messageType string) map[string]any {
	msgs := c.messages(messageType)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

type fakeResolver struct {
	mu      sync.Mutex
	probes  map[string]domain.Availability
	bangers []domain.Media

	// called without the zone lock held, before the result is returned
	onResolve func(path string)
	onProbe   func(m domain.Media)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{probes: make(map[string]domain.Availability)}
}

func testMedia(id string) domain.Media {
	return domain.Media{
		Source:   domain.Source{Provider: "library", Id: id},
		Title:    "title " + id,
		Duration: time.Minute,
		Src:      id + ".mp3",
	}
}

func (r *fakeResolver) Resolve(_ context.Context, path string) (domain.Media, error) {
	if r.onResolve != nil {
		r.onResolve(path)
	}
	id, ok := strings.CutPrefix(path, "library/")
	if !ok || id == "" {
		return domain.Media{}, media.ErrUnsupportedPath
	}
	if id == "missing" {
		return domain.Media{}, media.ErrNotFound
	}
	return testMedia(id), nil
}

func (r *fakeResolver) Banger(context.Context) (domain.Media, error) {
	if len(r.bangers) == 0 {
		return domain.Media{}, media.ErrNoBangers
	}
	return r.bangers[0], nil
}

func (r *fakeResolver) Probe(_ context.Context, m domain.Media) domain.Availability {
	if r.onProbe != nil {
		r.onProbe(m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.probes[m.Source.Id]; ok {
		return a
	}
	return domain.Available
}

func (r *fakeResolver) setProbe(id string, a domain.Availability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[id] = a
}

const adminPassword = "hunter2"

type testZone struct {
	*service
	clock    *timeline.Manual
	resolver *fakeResolver
}

func newTestZone(t *testing.T, modify ...func(*Config)) *testZone {
	t.Helper()

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &Config{
		Secret:        "test-secret",
		AdminPassword: string(adminHash),
		ChatLimit:     16,
		QueueLimit:    2,
		VoteThreshold: 0.5,
		GracePeriod:   gracePeriod,
		StartupDelay:  startupDelay,
	}
	for _, m := range modify {
		m(cfg)
	}

	clock := timeline.NewManual(time.Unix(1_700_000_000, 0))
	resolver := newFakeResolver()
	s, err := New(&Params{
		Config:       cfg,
		Resolver:     resolver,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewScheduler: clock.Bind,
	})
	require.NoError(t, err)

	return &testZone{service: s, clock: clock, resolver: resolver}
}

func (z *testZone) join(t *testing.T, name, addr string) (*fakeConn, JoinResponse) {
	t.Helper()

	conn := newConn(addr)
	require.NoError(t, z.Accept(context.Background(), conn))
	resp, err := z.Join(context.Background(), conn, &JoinParams{Name: name})
	require.NoError(t, err)
	return conn, resp
}

func (z *testZone) makeAdmin(t *testing.T, userId string) {
	t.Helper()
	require.NoError(t, z.AuthorizeAdmin(context.Background(), &AuthorizeAdminParams{
		Password: adminPassword,
		SenderId: userId,
	}))
}

func (z *testZone) queue(t *testing.T, userId, id string) QueueItem {
	t.Helper()
	item, err := z.Queue(context.Background(), &QueueParams{Path: "library/" + id, SenderId: userId})
	require.NoError(t, err)
	return item
}

func (z *testZone) user(userId string) (*domain.User, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.registry.LookupUser(userId)
}

func TestJoinSendsFullState(t *testing.T) {
	z := newTestZone(t)
	other, _ := z.join(t, "ann", "10.0.0.1")
	other.reset()

	conn, resp := z.join(t, "bob", "10.0.0.2")

	assert.Equal(t, []string{"assign", "users", "echoes", "queue", "play"}, conn.types())
	assert.Equal(t, resp.UserId, conn.last("assign")["userId"])
	assert.Equal(t, resp.Token, conn.last("assign")["token"])
	assert.Len(t, conn.last("users")["users"], 2)
	assert.Equal(t, []any{}, conn.last("echoes")["added"])
	assert.Empty(t, conn.last("play"), "idle play state is empty")

	joined := other.last("user")
	require.NotNil(t, joined, "others see the new user")
	assert.Equal(t, resp.UserId, joined["userId"])
	assert.Equal(t, "bob", joined["name"])
	assert.Empty(t, conn.messages("user"), "joiner is not told about itself twice")
}

func TestJoinValidation(t *testing.T) {
	z := newTestZone(t)
	conn := newConn("10.0.0.1")

	_, err := z.Join(context.Background(), conn, &JoinParams{Name: ""})
	require.Error(t, err)
	assert.False(t, conn.closed, "validation failures do not close the channel")
	assert.Empty(t, z.registry.Users())
}

func TestJoinTwiceOnSameChannel(t *testing.T) {
	z := newTestZone(t)
	conn, _ := z.join(t, "ann", "10.0.0.1")

	_, err := z.Join(context.Background(), conn, &JoinParams{Name: "ann"})
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestWrongPasswordRejects(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	z := newTestZone(t, func(c *Config) { c.Password = string(hash) })

	conn := newConn("10.0.0.1")
	_, err = z.Join(context.Background(), conn, &JoinParams{Name: "ann", Password: "nope"})
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.True(t, conn.closed)
	assert.Equal(t, CloseWrongPassword, conn.closeCode)
	assert.NotNil(t, conn.last("reject"))

	conn = newConn("10.0.0.1")
	_, err = z.Join(context.Background(), conn, &JoinParams{Name: "ann", Password: "secret"})
	assert.NoError(t, err)
}

func TestResumeWithinGracePreservesUser(t *testing.T) {
	z := newTestZone(t)
	observer, _ := z.join(t, "obs", "10.0.0.9")
	conn, resp := z.join(t, "ann", "10.0.0.1")

	require.NoError(t, z.UpdateUser(context.Background(), &UpdateUserParams{
		Position: domain.Position{1, 2, 3},
		SenderId: resp.UserId,
	}))
	z.makeAdmin(t, resp.UserId)
	item := z.queue(t, resp.UserId, "a")
	observer.reset()

	z.Disconnect(context.Background(), conn, websocket.CloseAbnormalClosure)
	z.clock.Advance(gracePeriod / 2)

	resumed := newConn("10.0.0.2")
	require.NoError(t, z.Accept(context.Background(), resumed))
	resumedResp, err := z.Join(context.Background(), resumed, &JoinParams{Name: "ignored", Token: resp.Token})
	require.NoError(t, err)
	assert.True(t, resumedResp.Resumed)
	assert.Equal(t, resp.UserId, resumedResp.UserId)
	assert.Equal(t, resp.Token, resumedResp.Token)

	z.clock.Advance(gracePeriod)

	user, ok := z.user(resp.UserId)
	require.True(t, ok, "rebinding cancels the removal")
	assert.Equal(t, "ann", user.Name)
	assert.Equal(t, domain.Position{1, 2, 3}, user.Position)
	assert.True(t, user.IsAdmin())

	current := resumed.last("play")["item"].(map[string]any)
	assert.Equal(t, float64(item.ItemId), current["itemId"])
	assert.Equal(t, resp.UserId, current["info"].(map[string]any)["userId"])

	assert.Empty(t, observer.messages("leave"))
	assert.Empty(t, observer.messages("user"))
	assert.Equal(t, []string{"assign", "users", "echoes", "queue", "play"}, resumed.types())
}

func TestTokenNeedsLiveChannel(t *testing.T) {
	z := newTestZone(t)
	conn, resp := z.join(t, "ann", "10.0.0.1")

	userId, err := z.Authenticate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserId, userId)

	z.Disconnect(context.Background(), conn, websocket.CloseAbnormalClosure)

	_, err = z.Authenticate(resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "no side channel while in the grace period")

	resumed := newConn("10.0.0.1")
	require.NoError(t, z.Accept(context.Background(), resumed))
	again, err := z.Join(context.Background(), resumed, &JoinParams{Name: "ann", Token: resp.Token})
	require.NoError(t, err)
	assert.True(t, again.Resumed)

	userId, err = z.Authenticate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserId, userId)
}

func TestCleanCloseRemovesImmediately(t *testing.T) {
	for _, code := range []int{websocket.CloseNormalClosure, websocket.CloseGoingAway} {
		z := newTestZone(t)
		observer, _ := z.join(t, "obs", "10.0.0.9")
		conn, resp := z.join(t, "ann", "10.0.0.1")

		z.Disconnect(context.Background(), conn, code)

		_, ok := z.user(resp.UserId)
		assert.False(t, ok)
		require.NotNil(t, observer.last("leave"))
		assert.Equal(t, resp.UserId, observer.last("leave")["userId"])

		_, err := z.Authenticate(resp.Token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token is revoked")

		again, err := z.Join(context.Background(), newConn("10.0.0.1"), &JoinParams{Name: "ann", Token: resp.Token})
		require.NoError(t, err)
		assert.False(t, again.Resumed)
		assert.NotEqual(t, resp.UserId, again.UserId, "ids are never reused")
	}
}

func TestUncleanCloseRemovesAfterGrace(t *testing.T) {
	z := newTestZone(t)
	observer, _ := z.join(t, "obs", "10.0.0.9")
	conn, resp := z.join(t, "ann", "10.0.0.1")

	z.Disconnect(context.Background(), conn, websocket.CloseAbnormalClosure)
	_, ok := z.user(resp.UserId)
	assert.True(t, ok)
	assert.Empty(t, observer.messages("leave"))

	z.clock.Advance(gracePeriod)
	_, ok = z.user(resp.UserId)
	assert.False(t, ok)
	assert.Len(t, observer.messages("leave"), 1)
}

func TestSecondChannelKeepsUserAlive(t *testing.T) {
	z := newTestZone(t)
	conn, resp := z.join(t, "ann", "10.0.0.1")

	second := newConn("10.0.0.1")
	_, err := z.Join(context.Background(), second, &JoinParams{Token: resp.Token})
	require.NoError(t, err)

	z.Disconnect(context.Background(), conn, websocket.CloseNormalClosure)
	_, ok := z.user(resp.UserId)
	assert.True(t, ok, "user still has a live channel")
}

func TestDisconnectUnboundChannel(t *testing.T) {
	z := newTestZone(t)
	z.Disconnect(context.Background(), newConn("10.0.0.1"), websocket.CloseAbnormalClosure)
	assert.Equal(t, 0, z.clock.Pending())
}

func TestUpdateUserBroadcastsPatch(t *testing.T) {
	z := newTestZone(t)
	observer, _ := z.join(t, "obs", "10.0.0.9")
	_, resp := z.join(t, "ann", "10.0.0.1")
	observer.reset()

	name := "anna"
	require.NoError(t, z.UpdateUser(context.Background(), &UpdateUserParams{
		Name:     &name,
		Emotes:   []string{EmoteSpin, EmoteSpin},
		SenderId: resp.UserId,
	}))

	patch := observer.last("user")
	assert.Equal(t, map[string]any{"userId": resp.UserId, "name": "anna", "emotes": []any{"spn"}}, patch)
}

func TestUpdateUserValidation(t *testing.T) {
	z := newTestZone(t)
	_, resp := z.join(t, "ann", "10.0.0.1")

	err := z.UpdateUser(context.Background(), &UpdateUserParams{Emotes: []string{"dance"}, SenderId: resp.UserId})
	assert.Error(t, err)

	err = z.UpdateUser(context.Background(), &UpdateUserParams{Position: domain.Position{1, 2, 3, 4}, SenderId: resp.UserId})
	assert.Error(t, err)

	user, _ := z.user(resp.UserId)
	assert.Empty(t, user.Emotes)
	assert.Nil(t, user.Position)
}

func TestChatTruncates(t *testing.T) {
	z := newTestZone(t)
	conn, resp := z.join(t, "ann", "10.0.0.1")

	require.NoError(t, z.Chat(context.Background(), &ChatParams{Text: "0123456789abcdefXYZ", SenderId: resp.UserId}))
	assert.Equal(t, map[string]any{"text": "0123456789abcdef", "userId": resp.UserId}, conn.last("chat"))

	assert.Error(t, z.Chat(context.Background(), &ChatParams{Text: "", SenderId: resp.UserId}))
	assert.ErrorIs(t, z.Chat(context.Background(), &ChatParams{Text: "hi", SenderId: "ghost"}), ErrUserNotFound)
}

func TestEchoes(t *testing.T) {
	z := newTestZone(t)
	conn, ann := z.join(t, "ann", "10.0.0.1")
	_, bob := z.join(t, "bob", "10.0.0.2")
	ctx := context.Background()
	pos := domain.Position{4, 0, 2}

	require.NoError(t, z.Echo(ctx, &EchoParams{Text: "hello", Position: pos, SenderId: ann.UserId}))
	added := conn.last("echoes")["added"].([]any)[0].(map[string]any)
	assert.Equal(t, "hello", added["text"])
	assert.Equal(t, "ann", added["name"])

	require.NoError(t, z.Echo(ctx, &EchoParams{Text: "", Position: domain.Position{4.2, 0, 1.9}, SenderId: bob.UserId}))
	assert.NotNil(t, conn.last("echoes")["removed"])
	_, ok := z.registry.Echo(pos)
	assert.False(t, ok, "empty text removes the echo")

	tooLong := make([]rune, domain.EchoTextLimit+1)
	for i := range tooLong {
		tooLong[i] = 'x'
	}
	assert.Error(t, z.Echo(ctx, &EchoParams{Text: string(tooLong), Position: pos, SenderId: bob.UserId}))
}

func TestAdminEchoProtected(t *testing.T) {
	z := newTestZone(t)
	_, admin := z.join(t, "root", "10.0.0.1")
	_, bob := z.join(t, "bob", "10.0.0.2")
	z.makeAdmin(t, admin.UserId)
	ctx := context.Background()
	pos := domain.Position{1, 1}

	require.NoError(t, z.Echo(ctx, &EchoParams{Text: "official", Position: pos, SenderId: admin.UserId}))

	assert.ErrorIs(t, z.Echo(ctx, &EchoParams{Text: "graffiti", Position: pos, SenderId: bob.UserId}), ErrPermissionDenied)
	assert.ErrorIs(t, z.Echo(ctx, &EchoParams{Text: "", Position: pos, SenderId: bob.UserId}), ErrPermissionDenied)
	echo, ok := z.registry.Echo(pos)
	require.True(t, ok)
	assert.Equal(t, "official", echo.Text)

	require.NoError(t, z.Echo(ctx, &EchoParams{Text: "", Position: pos, SenderId: admin.UserId}))
	_, ok = z.registry.Echo(pos)
	assert.False(t, ok)
}

func TestAuthorizeAdmin(t *testing.T) {
	z := newTestZone(t)
	conn, resp := z.join(t, "ann", "10.0.0.1")

	err := z.AuthorizeAdmin(context.Background(), &AuthorizeAdminParams{Password: "wrong", SenderId: resp.UserId})
	assert.ErrorIs(t, err, ErrWrongPassword)

	z.makeAdmin(t, resp.UserId)
	assert.Equal(t, []any{"admin"}, conn.last("user")["tags"])
}

func TestAuthorizeAdminDisabled(t *testing.T) {
	z := newTestZone(t, func(c *Config) { c.AdminPassword = "" })
	_, resp := z.join(t, "ann", "10.0.0.1")

	err := z.AuthorizeAdmin(context.Background(), &AuthorizeAdminParams{Password: "", SenderId: resp.UserId})
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestRandomSecretWhenUnset(t *testing.T) {
	z := newTestZone(t, func(c *Config) { c.Secret = "" })
	_, resp := z.join(t, "ann", "10.0.0.1")

	userId, err := z.Authenticate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserId, userId)

	_, err = z.Authenticate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
