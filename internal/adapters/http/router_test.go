package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	adhttp "github.com/dkeye/Stream/internal/adapters/http"
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/config"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/core/coretest"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "admin-token-0123456789"

func setup(t *testing.T) (*orch.Orchestrator, http.Handler) {
	t.Helper()
	return setupWith(t, adminToken)
}

func setupWith(t *testing.T, token string) (*orch.Orchestrator, http.Handler) {
	t.Helper()
	cfg := &config.Config{
		AdminToken: token,
		Mode:       "test",
		StaticPath: t.TempDir(),
		ReadLimit:  65536,
		PingPeriod: time.Minute,
		Secret:     "test-secret-0123456789",
		Signal:     config.SignalConfig{SendBuffer: 8, RateLimit: 100, RateInterval: time.Second},
	}
	reg := prometheus.NewRegistry()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(coretest.NewEngine(), []core.RtpCodecCapability{coretest.H264Capability()}),
		Metrics:  metrics.New(reg),
	}
	return o, adhttp.SetupRouter(context.Background(), cfg, o, reg)
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func asAdmin(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthzSetsClientCookie(t *testing.T) {
	_, h := setup(t)
	w := get(t, h, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Set-Cookie"), "StreamSessions=")
}

func TestRooms(t *testing.T) {
	o, h := setup(t)

	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/api/rooms/lobby").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/api/rooms/lobby/rtp-capabilities").Code)

	_, err := o.Rooms.GetOrCreate(context.Background(), "lobby")
	require.NoError(t, err)

	w := get(t, h, http.MethodGet, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Rooms []domain.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, domain.RoomID("lobby"), list.Rooms[0].ID)

	w = get(t, h, http.MethodGet, "/api/rooms/lobby")
	require.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, http.MethodGet, "/api/rooms/lobby/rtp-capabilities")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "video/H264")
}

func TestKickSession(t *testing.T) {
	o, h := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	o.OpenSession("abc", cancel)

	w := asAdmin(t, h, http.MethodGet, "/api/sessions", adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"abc"`)

	assert.Equal(t, http.StatusNoContent, asAdmin(t, h, http.MethodDelete, "/api/sessions/abc", adminToken).Code)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, http.StatusNotFound, asAdmin(t, h, http.MethodDelete, "/api/sessions/nope", adminToken).Code)
}

func TestSessionAPIRequiresAdminToken(t *testing.T) {
	o, h := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.OpenSession("abc", cancel)

	assert.Equal(t, http.StatusUnauthorized, get(t, h, http.MethodGet, "/api/sessions").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, http.MethodDelete, "/api/sessions/abc").Code)
	assert.Equal(t, http.StatusUnauthorized, asAdmin(t, h, http.MethodDelete, "/api/sessions/abc", "wrong-token-0123456789").Code)
	assert.NoError(t, ctx.Err())
}

func TestSessionAPIDisabledWithoutToken(t *testing.T) {
	o, h := setupWith(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.OpenSession("abc", cancel)

	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/api/sessions").Code)
	assert.Equal(t, http.StatusNotFound, asAdmin(t, h, http.MethodDelete, "/api/sessions/abc", "").Code)
	assert.NoError(t, ctx.Err())
}

func TestMetricsEndpoint(t *testing.T) {
	o, h := setup(t)
	o.OpenSession("abc", func() {})

	w := get(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stream_signal_sessions 1")
}
