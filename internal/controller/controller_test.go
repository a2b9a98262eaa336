package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/zone/internal/media"
	"github.com/sharetube/zone/internal/media/library"
	"github.com/sharetube/zone/internal/service"
	"github.com/sharetube/zone/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminPassword = "hunter2"

func newTestServer(t *testing.T, trustedProxies ...netip.Prefix) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lib, err := library.New(t.TempDir(), []library.Entry{
		{Id: "a", Title: "A", Duration: time.Minute, Src: "https://cdn.example/a.mp3", Tags: []string{"banger"}},
		{Id: "b", Title: "B", Duration: time.Minute, Src: "https://cdn.example/b.mp3"},
		{Id: "c", Title: "C", Duration: time.Minute, Src: "https://cdn.example/c.mp3"},
	})
	require.NoError(t, err)

	zone, err := service.New(&service.Params{
		Config: &service.Config{
			Secret:        "test-secret",
			AdminPassword: adminPassword,
			ChatLimit:     256,
			QueueLimit:    3,
			VoteThreshold: 0.5,
			GracePeriod:   time.Second,
		},
		Resolver: media.NewResolver(logger, lib, lib),
		Logger:   logger,
	})
	require.NoError(t, err)

	c := NewController(&Params{
		ZoneService:    zone,
		Transport:      transport.DefaultConfig(),
		TrustedProxies: trustedProxies,
		Logger:         logger,
	})
	srv := httptest.NewServer(c.GetMux())
	t.Cleanup(srv.Close)

	return srv
}

type wsMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	return dialWithHeader(t, srv, nil)
}

func dialWithHeader(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, messageType string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": messageType, "payload": payload}))
}

// readUntil skips messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, messageType string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == messageType {
			return msg.Payload
		}
	}
}

// join returns the session token of a freshly joined user once its full state has arrived.
func join(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()

	send(t, conn, "join", map[string]any{"name": name})
	assign := readUntil(t, conn, "assign")
	token, _ := assign["token"].(string)
	require.NotEmpty(t, token)

	// play closes the full state
	readUntil(t, conn, "play")

	return token
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}

	return resp.StatusCode, decoded
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJoinOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, "join", map[string]any{"name": "alice"})

	assign := readUntil(t, conn, "assign")
	assert.NotEmpty(t, assign["userId"])
	assert.NotEmpty(t, assign["token"])

	users := readUntil(t, conn, "users")
	assert.Len(t, users["users"], 1)
}

func TestJoinAnnouncedToOthers(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	join(t, alice, "alice")

	bob := dial(t, srv)
	join(t, bob, "bob")

	user := readUntil(t, alice, "user")
	assert.Equal(t, "bob", user["name"])
}

func TestMessageBeforeJoinRejected(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, "chat", map[string]any{"text": "hello"})

	reject := readUntil(t, conn, "reject")
	assert.Equal(t, service.ErrNotJoined.Error(), reject["text"])
}

func TestHeartbeat(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, "heartbeat", map[string]any{})
	readUntil(t, conn, "heartbeat")
}

func TestInvalidPayloadRejected(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	join(t, conn, "alice")

	send(t, conn, "chat", map[string]any{"text": 5})
	readUntil(t, conn, "reject")

	send(t, conn, "nonsense", map[string]any{})
	readUntil(t, conn, "reject")
}

func TestChatOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	join(t, conn, "alice")

	send(t, conn, "chat", map[string]any{"text": "hello"})

	chat := readUntil(t, conn, "chat")
	assert.Equal(t, "hello", chat["text"])
}

func TestQueueOverWebsocketReportsRefusals(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	join(t, conn, "alice")

	send(t, conn, "queue", map[string]any{"items": []map[string]any{
		{"path": "library/a"},
		{"path": "library/missing"},
	}})

	play := readUntil(t, conn, "play")
	item, _ := play["item"].(map[string]any)
	require.NotNil(t, item)
	assert.EqualValues(t, 1, item["itemId"])

	readUntil(t, conn, "status")
}

func TestHTTPRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/queue", "", map[string]any{"path": "library/a"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", "not-a-token", map[string]any{"path": "library/a"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestQueueOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	token := join(t, conn, "alice")

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "library/a"})
	require.Equal(t, http.StatusCreated, status)
	item, _ := body["item"].(map[string]any)
	require.NotNil(t, item)
	assert.EqualValues(t, 1, item["itemId"])

	play := readUntil(t, conn, "play")
	assert.NotNil(t, play["item"])

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "library/b"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "library/b"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "library/zzz"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestQueueValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	token := join(t, conn, "alice")

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["errors"])
}

func TestQueueBangerOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	token := join(t, conn, "alice")

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/queue/banger", token, nil)
	require.Equal(t, http.StatusCreated, status)

	item, _ := body["item"].(map[string]any)
	require.NotNil(t, item)
	info, _ := item["info"].(map[string]any)
	assert.Equal(t, true, info["banger"])
}

func TestSkipAndUnqueueOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	token := join(t, conn, "alice")

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/queue/skip", token, map[string]any{"itemId": 1})
	assert.Equal(t, http.StatusNotFound, status, "nothing is playing")

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "library/a"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/queue", token, map[string]any{"path": "library/b"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doJSON(t, srv, http.MethodDelete, "/api/v1/queue/2", token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	unqueue := readUntil(t, conn, "unqueue")
	assert.EqualValues(t, 2, unqueue["itemId"])

	status, _ = doJSON(t, srv, http.MethodDelete, "/api/v1/queue/2", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, srv, http.MethodDelete, "/api/v1/queue/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/queue/skip", token, map[string]any{"itemId": 1})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["skipped"], "the requester may skip their own item")
}

func TestEchoesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	token := join(t, conn, "alice")

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/echoes", token, map[string]any{
		"text":     "was here",
		"position": []float64{1, 2, 3},
	})
	require.Equal(t, http.StatusNoContent, status)

	echoes := readUntil(t, conn, "echoes")
	assert.Len(t, echoes["added"], 1)

	status, _ = doJSON(t, srv, http.MethodDelete, "/api/v1/echoes", token, map[string]any{
		"position": []float64{1, 2, 3},
	})
	require.Equal(t, http.StatusNoContent, status)

	echoes = readUntil(t, conn, "echoes")
	assert.Len(t, echoes["removed"], 1)
}

func TestAdminOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	token := join(t, conn, "alice")

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/admin/command", token, map[string]any{"name": "mode"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/admin/authorize", token, map[string]any{"password": "wrong"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/admin/authorize", token, map[string]any{"password": adminPassword})
	require.Equal(t, http.StatusNoContent, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/admin/command", token, map[string]any{"name": "mode", "args": []string{"on"}})
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/admin/command", token, map[string]any{"name": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/admin/command", token, map[string]any{"name": "dj-add", "args": []string{"nobody"}})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestForgedForwardingHeadersDoNotEvadeBan(t *testing.T) {
	srv := newTestServer(t)

	admin := dial(t, srv)
	adminToken := join(t, admin, "alice")
	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/admin/authorize", adminToken, map[string]any{"password": adminPassword})
	require.Equal(t, http.StatusNoContent, status)

	mallory := dialWithHeader(t, srv, http.Header{"X-Real-Ip": {"10.0.0.5"}})
	join(t, mallory, "mallory")

	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/admin/command", adminToken, map[string]any{"name": "ban", "args": []string{"mallory"}})
	require.Equal(t, http.StatusNoContent, status)
	readUntil(t, mallory, "reject")

	again := dialWithHeader(t, srv, http.Header{
		"X-Real-Ip":       {"10.0.0.6"},
		"X-Forwarded-For": {"10.0.0.6"},
	})
	reject := readUntil(t, again, "reject")
	assert.Equal(t, service.ErrBanned.Error(), reject["text"])

	_, _, err := again.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, service.CloseBanned), "got %v", err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/queue/banger", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("X-Real-IP", "10.0.0.7")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "the peer address is banned whatever the headers say")
}

func TestClientIpTrustedProxies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(&Params{
		ZoneService:    stubZoneService{},
		Transport:      transport.DefaultConfig(),
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")},
		Logger:         logger,
	})

	tests := []struct {
		name       string
		remoteAddr string
		header     http.Header
		want       string
	}{
		{
			name:       "untrusted peer",
			remoteAddr: "192.0.2.1:4000",
			header:     http.Header{"X-Real-Ip": {"10.0.0.5"}, "X-Forwarded-For": {"10.0.0.5"}},
			want:       "192.0.2.1",
		},
		{
			name:       "trusted peer without headers",
			remoteAddr: "127.0.0.1:4000",
			want:       "127.0.0.1",
		},
		{
			name:       "forwarded chain",
			remoteAddr: "127.0.0.1:4000",
			header:     http.Header{"X-Forwarded-For": {"10.0.0.9, 10.0.0.5, 127.0.0.2"}},
			want:       "10.0.0.5",
		},
		{
			name:       "real ip",
			remoteAddr: "127.0.0.1:4000",
			header:     http.Header{"X-Real-Ip": {"10.0.0.5"}},
			want:       "10.0.0.5",
		},
		{
			name:       "malformed header",
			remoteAddr: "127.0.0.1:4000",
			header:     http.Header{"X-Real-Ip": {"not-an-ip"}},
			want:       "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.header {
				r.Header[k] = v
			}

			assert.Equal(t, tt.want, c.clientIp(r))
		})
	}
}

type stubZoneService struct {
	iZoneService
	banned bool
}

func (s stubZoneService) IsBanned(string) bool { return s.banned }

func (s stubZoneService) Authenticate(token string) (string, error) {
	if token != "good" {
		return "", service.ErrInvalidToken
	}
	return "user-1", nil
}

func (s stubZoneService) Unqueue(ctx context.Context, params *service.UnqueueParams) error {
	if params.SenderId != "user-1" {
		return service.ErrUserNotFound
	}
	return nil
}

func TestBanMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := NewController(&Params{ZoneService: stubZoneService{banned: true}, Transport: transport.DefaultConfig(), Logger: logger})
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/queue/1", nil)
	r.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	c.GetMux().ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c = NewController(&Params{ZoneService: stubZoneService{}, Transport: transport.DefaultConfig(), Logger: logger})
	w = httptest.NewRecorder()
	c.GetMux().ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrPermissionDenied, http.StatusForbidden},
		{service.ErrAlreadyQueued, http.StatusConflict},
		{service.ErrQueueLimitReached, http.StatusConflict},
		{service.ErrItemNotFound, http.StatusNotFound},
		{service.ErrUnknownCommand, http.StatusBadRequest},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{media.ErrUnsupportedPath, http.StatusBadRequest},
		{io.EOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}
