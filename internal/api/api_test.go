package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tabletop/internal/api/apierr"
	"github.com/mcoot/tabletop/internal/api/response"
	"github.com/mcoot/tabletop/internal/factory"
	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/services/auth"
)

// testServer wraps the admin router of a test app
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
	token   string
}

func newTestServer(t *testing.T, withPasswordFile bool) *testServer {
	t.Helper()

	path := ""
	if withPasswordFile {
		path = filepath.Join(t.TempDir(), "passwords.json")
	}
	app, err := factory.NewTestApp(path)
	require.NoError(t, err)

	token, err := app.AuthService.Issue("test")
	require.NoError(t, err)

	return &testServer{
		handler: app.Router(),
		app:     app,
		token:   token,
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

func (ts *testServer) admin(method, path string, body any) *httptest.ResponseRecorder {
	return ts.request(method, path, body, ts.token)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[apierr.ErrorResponse](t, rr).Error.Code
}

func createPlayer(t *testing.T, ts *testServer, name, role string) response.CreatedPlayer {
	t.Helper()
	rr := ts.admin(http.MethodPost, "/api/v1/players", map[string]string{
		"name":     name,
		"role":     role,
		"password": name + "-secret",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.CreatedPlayer](t, rr)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[response.Health](t, rr).Status)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.request(http.MethodGet, "/api/v1/players", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/sessions", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnauthorizedWithForeignToken(t *testing.T) {
	ts := newTestServer(t, true)
	foreign, err := auth.New(ts.app.MockClock, auth.Config{Secret: "not-ours"}).Issue("intruder")
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/players", nil, foreign)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	ts := newTestServer(t, true)
	ts.app.MockClock.Advance(2 * time.Hour)

	rr := ts.admin(http.MethodGet, "/api/v1/players", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeReturnsTokenIdentity(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.admin(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	me := decode[response.Identity](t, rr)
	assert.Equal(t, "test", me.Subject)
	assert.NotEmpty(t, me.TokenID)
	assert.True(t, me.ExpiresAt.Equal(ts.app.MockClock.Now().Add(time.Hour)))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestCreateAndGetPlayer(t *testing.T) {
	ts := newTestServer(t, true)

	created := createPlayer(t, ts, "alice", "gm")
	assert.Equal(t, "alice", created.Name)
	assert.Equal(t, "GM", created.Role)
	assert.NotEmpty(t, created.Salt)

	rr := ts.admin(http.MethodGet, "/api/v1/players/alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	player := decode[response.Player](t, rr)
	assert.Equal(t, "GM", player.Role)
	assert.False(t, player.Disabled)
	assert.Empty(t, player.PlayTimes)
}

func TestCreatePlayerValidation(t *testing.T) {
	ts := newTestServer(t, true)
	createPlayer(t, ts, "alice", "PLAYER")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"duplicate", map[string]string{"name": "alice", "role": "PLAYER", "password": "x"}, http.StatusConflict, apierr.CodePlayerExists},
		{"bad role", map[string]string{"name": "bob", "role": "wizard", "password": "x"}, http.StatusBadRequest, apierr.CodeInvalidRole},
		{"missing name", map[string]string{"role": "PLAYER", "password": "x"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"missing password", map[string]string{"name": "bob", "role": "PLAYER"}, http.StatusBadRequest, apierr.CodeInvalidRequest},
		{"not json", "plain text", http.StatusBadRequest, apierr.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.admin(http.MethodPost, "/api/v1/players", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rr))
		})
	}
}

func TestListPlayersSortedByName(t *testing.T) {
	ts := newTestServer(t, true)
	createPlayer(t, ts, "carol", "PLAYER")
	createPlayer(t, ts, "alice", "GM")
	createPlayer(t, ts, "bob", "PLAYER")

	rr := ts.admin(http.MethodGet, "/api/v1/players", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	list := decode[response.PlayerList](t, rr)
	var names []string
	for _, p := range list.Players {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)
}

func TestDisableAndEnablePlayer(t *testing.T) {
	ts := newTestServer(t, true)
	createPlayer(t, ts, "alice", "PLAYER")

	rr := ts.admin(http.MethodPost, "/api/v1/players/alice/disable", map[string]string{"reason": "cheating"})
	require.Equal(t, http.StatusOK, rr.Code)
	player := decode[response.Player](t, rr)
	assert.True(t, player.Disabled)
	assert.Equal(t, "cheating", player.DisabledReason)

	rr = ts.admin(http.MethodPost, "/api/v1/players/alice/enable", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[response.Player](t, rr).Disabled)

	rr = ts.admin(http.MethodPost, "/api/v1/players/alice/disable", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDisableUnknownPlayer(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.admin(http.MethodPost, "/api/v1/players/ghost/disable", map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodePlayerNotFound, errorCode(t, rr))
}

func TestPlayTimes(t *testing.T) {
	ts := newTestServer(t, true)
	createPlayer(t, ts, "alice", "PLAYER")

	body := []map[string]any{
		{"day": 5, "start": "18:00", "end": "23:00"},
		{"day": 1, "start": "09:00", "end": "12:00"},
	}
	rr := ts.admin(http.MethodPut, "/api/v1/players/alice/playtimes", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []response.PlayTime{
		{Day: 1, Start: "09:00", End: "12:00"},
		{Day: 5, Start: "18:00", End: "23:00"},
	}, decode[[]response.PlayTime](t, rr))

	rr = ts.admin(http.MethodGet, "/api/v1/players/alice/playtimes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]response.PlayTime](t, rr), 2)

	rr = ts.admin(http.MethodPut, "/api/v1/players/alice/playtimes", []map[string]any{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]response.PlayTime](t, rr))
}

func TestInvalidPlayTimesRejected(t *testing.T) {
	ts := newTestServer(t, true)
	createPlayer(t, ts, "alice", "PLAYER")

	for _, body := range [][]map[string]any{
		{{"day": 8, "start": "09:00", "end": "10:00"}},
		{{"day": 1, "start": "10:00", "end": "09:00"}},
		{{"day": 1, "start": "soon", "end": "09:00"}},
	} {
		rr := ts.admin(http.MethodPut, "/api/v1/players/alice/playtimes", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apierr.CodeInvalidPlayTime, errorCode(t, rr))
	}
}

func TestDeletePlayer(t *testing.T) {
	ts := newTestServer(t, true)
	createPlayer(t, ts, "alice", "PLAYER")

	rr := ts.admin(http.MethodDelete, "/api/v1/players/alice", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.admin(http.MethodGet, "/api/v1/players/alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.admin(http.MethodDelete, "/api/v1/players/alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessionsListsReservedNames(t *testing.T) {
	ts := newTestServer(t, true)
	ctx := context.Background()
	for _, name := range []string{"bob", "alice"} {
		token, err := ts.app.Registry.Reserve(ctx, name, time.Minute)
		require.NoError(t, err)
		require.NoError(t, ts.app.Registry.Confirm(ctx, name, token))
	}

	rr := ts.admin(http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"alice", "bob"}, decode[response.SessionList](t, rr).Active)
}

func TestRolePasswordDatabaseIsReadOnly(t *testing.T) {
	ts := newTestServer(t, false)

	rr := ts.admin(http.MethodGet, "/api/v1/players", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[response.PlayerList](t, rr).Players)

	mutations := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/v1/players", map[string]string{"name": "a", "role": "PLAYER", "password": "x"}},
		{http.MethodDelete, "/api/v1/players/a", nil},
		{http.MethodPost, "/api/v1/players/a/disable", map[string]string{"reason": "x"}},
		{http.MethodPost, "/api/v1/players/a/enable", nil},
		{http.MethodGet, "/api/v1/players/a/playtimes", nil},
		{http.MethodPut, "/api/v1/players/a/playtimes", []any{}},
	}
	for _, m := range mutations {
		rr := ts.admin(m.method, m.path, m.body)
		assert.Equal(t, http.StatusNotImplemented, rr.Code, m.method+" "+m.path)
		assert.Equal(t, apierr.CodeUnsupported, errorCode(t, rr))
	}

	rr = ts.admin(http.MethodGet, "/api/v1/players/a", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, true)
	require.NoError(t, ts.app.Database.AddPlayer("alice", model.RolePlayer, "secret"))

	rr := ts.request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tabletop_password_file_flushes_total")
}
