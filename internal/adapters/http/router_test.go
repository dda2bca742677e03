package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/groupcall/internal/adapters/signal"
	"github.com/dkeye/groupcall/internal/app"
	"github.com/dkeye/groupcall/internal/app/orch"
	"github.com/dkeye/groupcall/internal/config"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/core/coretest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := signal.NewHub()
	o := &orch.Orchestrator{
		Registry:   app.NewRegistry(),
		Rooms:      app.NewRoomRegistry(coretest.NewFabric()),
		Candidates: core.NewCandidateBuffer(0),
		Transport:  hub,
		Policy:     app.SimplePolicy{},
	}
	ctrl := signal.NewSignalWSController(o, hub, nil, signal.DefaultOptions())
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o.Rooms, ctrl), o
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoomsEndpoints(t *testing.T) {
	r, o := newRouter(t)

	w := get(r, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	require.NoError(t, o.JoinRoom(context.Background(), "a", "alice", "standup"))
	require.NoError(t, o.JoinRoom(context.Background(), "b", "bob", "standup"))

	w = get(r, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "standup", list[0]["name"])
	assert.EqualValues(t, 2, list[0]["client_count"])

	w = get(r, "/api/rooms/standup")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"client_count":2`)

	w = get(r, "/api/rooms/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := newRouter(t)
	w := get(r, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "GroupCallSessions", cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Result().Cookies(), "known client keeps its token")
}
