// Package signal is the WebSocket signalling adapter. Each connection gets a
// session whose messages are handled one at a time, in arrival order.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

var ErrConnClosed = errors.New("connection closed")

type Options struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
}

func DefaultOptions() Options {
	return Options{SendBuffer: 32, ReadLimit: 64 << 10, PingPeriod: 30 * time.Second}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	Opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RateLimiter, opts Options) *SignalWSController {
	d := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = d.SendBuffer
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = d.ReadLimit
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = d.PingPeriod
	}
	return &SignalWSController{Orch: o, Limiter: limiter, Opts: opts}
}

// WsSignalConn queues outbound frames for the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the session until the socket
// closes or ctx is done.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	// Session ids are listed on the admin API, so they must not carry the cookie token.
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Opts.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	session := ctl.Orch.OpenSession(sid, cancel)
	inbox := make(chan []byte, 16)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn, inbox)
	go ctl.dispatch(ctx, session, conn, inbox)
}

// dispatch handles inbox messages sequentially and tears the session down
// when ctx ends.
func (ctl *SignalWSController) dispatch(ctx context.Context, s *orch.Session, conn core.SignalConnection, inbox <-chan []byte) {
	defer func() {
		ctl.Orch.CloseSession(s)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(s.ID())
		}
		conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-inbox:
			ctl.handleSignal(ctx, s, conn, data)
		}
	}
}
