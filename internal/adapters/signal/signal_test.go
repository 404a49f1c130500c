package signal_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Stream/internal/adapters/signal"
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/core/coretest"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	orch *orch.Orchestrator
	url  string
}

func newServer(t *testing.T, discovery app.DiscoveryOptions, limiter *signal.RateLimiter) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	o := &orch.Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     app.NewRoomManager(coretest.NewEngine(), []core.RtpCodecCapability{coretest.H264Capability()}),
		Metrics:   metrics.New(nil),
		Discovery: discovery,
	}
	ctrl := signal.NewSignalWSController(o, limiter, signal.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &server{orch: o, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (s *server) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (s *server) seedProducer(t *testing.T) {
	t.Helper()
	room, err := s.orch.Rooms.GetOrCreate(context.Background(), domain.DefaultRoom)
	require.NoError(t, err)
	p := coretest.NewProducer("producer-1", domain.KindVideo, coretest.H264Parameters(0x12345678))
	room.Router().(*coretest.Router).Seed(p)
	room.AddProducer(p, 0x12345678)
}

func send(t *testing.T, ws *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func read(t *testing.T, ws *websocket.Conn, wait time.Duration) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

const h264Caps = `{"codecs":[{"kind":"video","mimeType":"video/H264","clockRate":90000,` +
	`"parameters":{"packetization-mode":1,"profile-level-id":"42e01f","level-asymmetry-allowed":1}}]}`

const connectMsg = `{"action":"connect-transport","dtlsParameters":{"role":"client",` +
	`"fingerprints":[{"algorithm":"sha-256","value":"AB:CD"}]}}`

func TestCapabilitiesWithoutJoin(t *testing.T) {
	s := newServer(t, app.DefaultDiscoveryOptions(), nil)
	ws := s.dial(t)

	send(t, ws, `{"action":"get-rtp-capabilities"}`)
	msg := read(t, ws, 2*time.Second)

	assert.Equal(t, "rtp-capabilities", msg["action"])
	caps := msg["rtpCapabilities"].(map[string]any)
	codecs := caps["codecs"].([]any)
	require.NotEmpty(t, codecs)
	assert.Equal(t, "video/H264", codecs[0].(map[string]any)["mimeType"])
}

func TestConsumeWithoutProducer(t *testing.T) {
	s := newServer(t, app.DiscoveryOptions{Interval: 10 * time.Millisecond, Attempts: 10}, nil)
	ws := s.dial(t)

	start := time.Now()
	send(t, ws, `{"action":"consume","rtpCapabilities":`+h264Caps+`}`)
	msg := read(t, ws, 2*time.Second)

	assert.Equal(t, map[string]any{"action": "error", "message": "No producer available"}, msg)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// The session is still open.
	send(t, ws, `{"action":"ping"}`)
	assert.Equal(t, "pong", read(t, ws, time.Second)["action"])
}

func TestJoinConnectConsumeResume(t *testing.T) {
	s := newServer(t, app.DefaultDiscoveryOptions(), nil)
	s.seedProducer(t)
	ws := s.dial(t)

	send(t, ws, `{"action":"join"}`)
	created := read(t, ws, 2*time.Second)
	require.Equal(t, "transport-created", created["action"])
	assert.NotEmpty(t, created["transportId"])
	assert.NotEmpty(t, created["iceCandidates"])
	ice := created["iceParameters"].(map[string]any)
	assert.NotEmpty(t, ice["usernameFragment"])
	dtls := created["dtlsParameters"].(map[string]any)
	assert.NotEmpty(t, dtls["fingerprints"])

	send(t, ws, connectMsg)
	assert.Equal(t, map[string]any{"action": "transport-connected"}, read(t, ws, 2*time.Second))

	send(t, ws, `{"action":"consume","rtpCapabilities":`+h264Caps+`}`)
	consumer := read(t, ws, 2*time.Second)
	require.Equal(t, "consumer-created", consumer["action"], consumer)
	assert.Equal(t, "video", consumer["kind"])
	assert.Equal(t, "producer-1", consumer["producerId"])
	assert.NotEmpty(t, consumer["id"])
	params := consumer["rtpParameters"].(map[string]any)
	codec := params["codecs"].([]any)[0].(map[string]any)
	assert.Equal(t, "video/H264", codec["mimeType"])
	assert.EqualValues(t, 96, codec["payloadType"])
	assert.EqualValues(t, 90000, codec["clockRate"])

	send(t, ws, `{"action":"resume-consumer"}`)
	assert.Equal(t, map[string]any{"action": "consumer-resumed"}, read(t, ws, 2*time.Second))

	snap := s.orch.Registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "consuming", snap[0].State)
	_, err := uuid.Parse(string(snap[0].ID))
	assert.NoError(t, err, "session ids are random, not derived from the client cookie")
}

func TestProtocolErrors(t *testing.T) {
	s := newServer(t, app.DefaultDiscoveryOptions(), nil)
	ws := s.dial(t)

	send(t, ws, `not json`)
	assert.Equal(t, "error", read(t, ws, time.Second)["action"])

	send(t, ws, `{"action":"produce"}`)
	msg := read(t, ws, time.Second)
	assert.Equal(t, "error", msg["action"])
	assert.Contains(t, msg["message"], "unknown action")

	send(t, ws, connectMsg)
	msg = read(t, ws, time.Second)
	assert.Equal(t, "error", msg["action"])
	assert.Contains(t, msg["message"], "invalid session state")

	send(t, ws, `{"action":"resume-consumer"}`)
	assert.Equal(t, "error", read(t, ws, time.Second)["action"])

	send(t, ws, `{"action":"join"}`)
	assert.Equal(t, "transport-created", read(t, ws, time.Second)["action"])
	send(t, ws, `{"action":"connect-transport"}`)
	msg = read(t, ws, time.Second)
	assert.Equal(t, "error", msg["action"])
	assert.Contains(t, msg["message"], "dtlsParameters")
}

func TestDisconnectClosesSession(t *testing.T) {
	s := newServer(t, app.DefaultDiscoveryOptions(), nil)
	ws := s.dial(t)

	send(t, ws, `{"action":"join","roomId":"lobby"}`)
	require.Equal(t, "transport-created", read(t, ws, time.Second)["action"])
	room, ok := s.orch.Rooms.Get("lobby")
	require.True(t, ok)
	require.Equal(t, 1, room.Info().Transports)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return s.orch.Registry.Count() == 0 && room.Info().Transports == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, app.DefaultDiscoveryOptions(), signal.NewRateLimiter(2, time.Minute))
	ws := s.dial(t)

	for range 2 {
		send(t, ws, `{"action":"ping"}`)
		assert.Equal(t, "pong", read(t, ws, time.Second)["action"])
	}
	send(t, ws, `{"action":"ping"}`)
	msg := read(t, ws, time.Second)
	assert.Equal(t, map[string]any{"action": "error", "message": "rate limited"}, msg)
}
