package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/dragonrealm/internal/api/apierr"
	"github.com/mcoot/dragonrealm/internal/api/response"
	"github.com/mcoot/dragonrealm/internal/factory"
	"github.com/mcoot/dragonrealm/internal/middleware"
	"github.com/mcoot/dragonrealm/internal/realtime/protocol"
)

// testServer creates a test server with all dependencies
type testServer struct {
	app     *factory.TestApp
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, func(*factory.TestApp) {})
}

func newTestServerWith(t *testing.T, configure func(*factory.TestApp)) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	configure(app)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = app.Hub.Run(ctx) }()
	t.Cleanup(cancel)

	return &testServer{
		app:     app,
		handler: app.Router(),
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) register(t *testing.T, username, nickname string) response.AuthResponse {
	t.Helper()

	body := map[string]string{"username": username, "password": "secret123", "nickname": nickname}
	rr := ts.request(http.MethodPost, "/api/v1/users/register", body, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func (ts *testServer) admin(t *testing.T) string {
	t.Helper()

	require.NoError(t, ts.app.AuthService.EnsureAdmin(context.Background(), "root", "rootpassword"))
	rr := ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "root", "password": "rootpassword"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.User.IsAdmin)
	return resp.Token
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()

	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.Health
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Connections)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	// Register
	registered := ts.register(t, "alice", "Alice")
	assert.Equal(t, "alice", registered.User.Username)
	assert.Equal(t, "Alice", registered.User.Nickname)
	assert.False(t, registered.User.IsAdmin)
	assert.NotEmpty(t, registered.Token)

	// Login
	loginBody := map[string]string{"username": "alice", "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/users/login", loginBody, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var loginResp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loginResp))
	assert.Equal(t, registered.User.ID, loginResp.User.ID)
	assert.NotEqual(t, registered.Token, loginResp.Token)

	// Both sessions work
	for _, token := range []string{registered.Token, loginResp.Token} {
		rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, token)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]string{"username": "alice", "password": "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/users/register", body, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	ts.handler.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)

	var user response.User
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &user))
	// nickname defaults to the username
	assert.Equal(t, "alice", user.Nickname)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "Alice")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing username", map[string]string{"password": "secret123"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"missing password", map[string]string{"username": "bob"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"short password", map[string]string{"username": "bob", "password": "abc"}, http.StatusBadRequest, apierr.CodeOutOfRange},
		{"short username", map[string]string{"username": "bo", "password": "secret123"}, http.StatusBadRequest, apierr.CodeOutOfRange},
		{"whitespace username", map[string]string{"username": "bob smith", "password": "secret123"}, http.StatusBadRequest, apierr.CodeMalformed},
		{"unknown field", map[string]string{"username": "bob", "password": "secret123", "role": "admin"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"duplicate username", map[string]string{"username": "alice", "password": "secret123"}, http.StatusConflict, apierr.CodeUsernameExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/users/register", tt.body, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Code)
		})
	}
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice", "Alice")

	wrongPassword := ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "alice", "password": "nope123"}, "")
	unknownUser := ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "mallory", "password": "nope123"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{"/api/v1/users/me", "/api/v1/world/online", "/api/v1/world/collectibles", "/api/v1/admin/sessions"}
	for _, path := range paths {
		rr := ts.request(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)

		rr = ts.request(http.MethodGet, path, nil, "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestUpdateNickname(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice", "Alice")

	rr := ts.request(http.MethodPatch, "/api/v1/users/me/nickname", map[string]string{"nickname": "  Queen Alice  "}, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)

	var user response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "Queen Alice", user.Nickname)

	rr = ts.request(http.MethodPatch, "/api/v1/users/me/nickname", map[string]string{"nickname": "Q"}, alice.Token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeOutOfRange, decodeError(t, rr).Code)

	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, alice.Token)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "Queen Alice", user.Nickname)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice", "Alice")

	rr := ts.request(http.MethodPost, "/api/v1/users/logout", nil, alice.Token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, alice.Token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWorldEndpoints(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice", "Alice")

	rr := ts.request(http.MethodGet, "/api/v1/world", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var w response.World
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &w))
	assert.Equal(t, 800.0, w.Width)
	assert.Equal(t, 600.0, w.Height)
	assert.Equal(t, 24.0, w.Bounds.MinX)
	assert.Equal(t, 776.0, w.Bounds.MaxX)

	rr = ts.request(http.MethodGet, "/api/v1/world/dragons", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var dragons []map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dragons))
	assert.Len(t, dragons, 4)

	rr = ts.request(http.MethodGet, "/api/v1/world/online", nil, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = ts.request(http.MethodGet, "/api/v1/world/collectibles", nil, alice.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var items []response.Collectible
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 5)
	assert.Equal(t, "collectible_0", items[0].ID)
	assert.False(t, items[0].Collected)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice", "Alice")
	adminToken := ts.admin(t)

	// Regular users are forbidden
	rr := ts.request(http.MethodGet, "/api/v1/admin/sessions", nil, alice.Token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeForbidden, decodeError(t, rr).Code)

	rr = ts.request(http.MethodGet, "/api/v1/admin/sessions", nil, adminToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var sessions []response.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
	assert.NotContains(t, rr.Body.String(), alice.Token)

	// Admin creates another admin
	body := map[string]any{"username": "keeper", "password": "secret123", "nickname": "Keeper", "isAdmin": true}
	rr = ts.request(http.MethodPost, "/api/v1/admin/users", body, adminToken)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.True(t, created.IsAdmin)

	rr = ts.request(http.MethodGet, "/api/v1/admin/users", nil, adminToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var users []response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	assert.Len(t, users, 3)

	// Unknown session
	rr = ts.request(http.MethodDelete, "/api/v1/admin/sessions/does-not-exist", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServerWith(t, func(app *factory.TestApp) {
		app.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			Requests: 2,
			Window:   time.Minute,
			IdleTTL:  time.Minute,
		})
	})

	for i := 0; i < 2; i++ {
		rr := ts.request(http.MethodGet, "/api/v1/world", nil, "")
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := ts.request(http.MethodGet, "/api/v1/world", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, apierr.CodeRateLimited, decodeError(t, rr).Code)
}

func TestGzipResponses(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/world/dragons", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Vary"), "Accept-Encoding")
}

func socketURL(srv *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func readFrame(t *testing.T, conn *websocket.Conn, want protocol.Type) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env protocol.Envelope
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == want {
			return env.Payload
		}
	}
}

func TestSocketRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(socketURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSocketAcceptsBearerHeader(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	alice := ts.register(t, "alice", "Alice")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+alice.Token)
	conn, _, err := websocket.DefaultDialer.Dial(socketURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	var welcome protocol.Welcome
	require.NoError(t, json.Unmarshal(readFrame(t, conn, protocol.TypeWelcome), &welcome))
	assert.Equal(t, "Alice", welcome.User.Nickname)

	rr := ts.request(http.MethodGet, "/api/v1/world/online", nil, alice.Token)
	var online []response.OnlineUser
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &online))
	require.Len(t, online, 1)
	assert.Equal(t, "Alice", online[0].Nickname)
}

func TestAdminTerminationEvictsLiveConnection(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	alice := ts.register(t, "alice", "Alice")
	bob := ts.register(t, "bob", "Bob")
	adminToken := ts.admin(t)

	aliceConn, _, err := websocket.DefaultDialer.Dial(socketURL(srv, alice.Token), nil)
	require.NoError(t, err)
	defer aliceConn.Close()
	readFrame(t, aliceConn, protocol.TypeCollectiblesState)

	bobConn, _, err := websocket.DefaultDialer.Dial(socketURL(srv, bob.Token), nil)
	require.NoError(t, err)
	defer bobConn.Close()
	readFrame(t, bobConn, protocol.TypeCollectiblesState)

	// Find alice's session
	rr := ts.request(http.MethodGet, "/api/v1/admin/sessions", nil, adminToken)
	var sessions []response.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))
	var sessionID string
	for _, s := range sessions {
		if s.Username == "alice" {
			sessionID = s.ID
		}
	}
	require.NotEmpty(t, sessionID)

	rr = ts.request(http.MethodDelete, "/api/v1/admin/sessions/"+sessionID, nil, adminToken)
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.JSONEq(t, `{"reason":"terminated"}`, string(readFrame(t, aliceConn, protocol.TypeSessionTerminated)))
	_, _, err = aliceConn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))

	var gone protocol.UserDisconnected
	require.NoError(t, json.Unmarshal(readFrame(t, bobConn, protocol.TypeUserDisconnected), &gone))
	assert.Equal(t, alice.User.ID, string(gone.UserID))

	// The token no longer authenticates anything
	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, alice.Token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	_, resp, err := websocket.DefaultDialer.Dial(socketURL(srv, alice.Token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
