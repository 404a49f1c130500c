package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.Opts.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn, inbox chan<- []byte) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
	}()

	// Peers answering pings keep the read deadline moving.
	deadline := ctl.Opts.PingPeriod * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
		select {
		case <-ctx.Done():
			return
		case inbox <- data:
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *orch.Session, c core.SignalConnection, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(s.ID())).Msg("bad json")
		ctl.replyError(s, c, "invalid", errors.New("invalid message"))
		return
	}

	label := env.Action
	switch env.Action {
	case actionJoin, actionGetRtpCapabilities, actionConnectTransport, actionConsume, actionResumeConsumer, actionPing:
	default:
		label = "unknown"
	}
	ctl.Orch.Metrics.SignalMessages.WithLabelValues(label).Inc()

	if ctl.Limiter != nil && !ctl.Limiter.Allow(s.ID()) {
		ctl.replyError(s, c, label, ErrRateLimited)
		return
	}

	switch env.Action {
	case actionJoin:
		ctl.handleJoin(ctx, s, c, data)
	case actionGetRtpCapabilities:
		ctl.handleRtpCapabilities(ctx, s, c)
	case actionConnectTransport:
		ctl.handleConnectTransport(ctx, s, c, data)
	case actionConsume:
		ctl.handleConsume(ctx, s, c, data)
	case actionResumeConsumer:
		ctl.handleResumeConsumer(ctx, s, c)
	case actionPing:
		ctl.handlePing(s, c)
	default:
		log.Warn().Str("module", "signal").Str("action", env.Action).Msg("unknown signal")
		ctl.replyError(s, c, label, errors.New("unknown action "+env.Action))
	}
}

func (ctl *SignalWSController) sendJSON(s *orch.Session, c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	err = c.TrySend(b)
	if errors.Is(err, ErrBackpressure) {
		action := ctl.Orch.OnBackPressure(s.ID())
		log.Warn().Str("module", "signal").Str("sid", string(s.ID())).Int("policy", int(action)).Msg("send queue full")
		if action == app.CloseSession {
			c.Close()
		}
	}
}

func (ctl *SignalWSController) replyError(s *orch.Session, c core.SignalConnection, action string, err error) {
	ctl.Orch.Metrics.SignalErrors.WithLabelValues(action).Inc()
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.ID())).Str("action", action).Msg("request failed")
	ctl.sendJSON(s, c, errorResponse{Action: actionError, Message: clientMessage(err)})
}

// clientMessage is the text a client sees for err.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoProducerAvailable):
		return domain.ErrNoProducerAvailable.Error()
	case errors.Is(err, context.Canceled):
		return "session closed"
	default:
		return err.Error()
	}
}
