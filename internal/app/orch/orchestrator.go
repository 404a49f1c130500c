// Package orch drives signalling sessions through their state machine and
// connects them to rooms, transports and consumers.
package orch

import (
	"context"
	"sync"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/ingest"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     *app.RoomManager
	Policy    app.Policy
	Metrics   *metrics.Metrics
	Discovery app.DiscoveryOptions

	// DefaultRoom is used by joins without a room id and by capability queries.
	DefaultRoom domain.RoomID
	// ConsumeKind is the media kind consume requests look for.
	ConsumeKind domain.MediaKind

	mu        sync.Mutex
	receivers map[domain.RoomID]*ingest.Receiver
	initOnce  sync.Once
}

func (o *Orchestrator) init() {
	o.initOnce.Do(func() {
		if o.Metrics == nil {
			o.Metrics = metrics.New(nil)
		}
		if o.DefaultRoom == "" {
			o.DefaultRoom = domain.DefaultRoom
		}
		if o.ConsumeKind == "" {
			o.ConsumeKind = domain.KindVideo
		}
		if o.Discovery.Interval <= 0 || o.Discovery.Attempts <= 0 {
			o.Discovery = app.DefaultDiscoveryOptions()
		}
		if o.Policy == nil {
			o.Policy = app.SimplePolicy{}
		}
		o.receivers = make(map[domain.RoomID]*ingest.Receiver)
	})
}

// OpenSession registers a new session in state Init. cancel aborts whatever
// the session is waiting on and is invoked when the session is kicked.
func (o *Orchestrator) OpenSession(sid core.SessionID, cancel context.CancelFunc) *Session {
	o.init()
	s := NewSession(sid)
	o.Registry.Bind(sid, s.State().String(), cancel)
	o.Metrics.Sessions.Inc()
	return s
}

// CloseSession moves s to Closed and releases its consumers and transport.
// It is safe to call more than once.
func (o *Orchestrator) CloseSession(s *Session) {
	o.init()
	if s.State() == StateClosed {
		return
	}
	s.setState(StateClosed)

	room, t := s.Room(), s.Transport()
	if room != nil && t != nil {
		for _, c := range room.ConsumersOfTransport(t.ID()) {
			room.RemoveConsumer(c.ID())
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("consumer", c.ID()).Msg("close consumer")
			}
			o.Metrics.Consumers.WithLabelValues(string(room.ID())).Dec()
		}
		room.RemoveTransport(t.ID())
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("transport", t.ID()).Msg("close transport")
		}
	}

	o.Registry.Unbind(s.ID())
	o.Metrics.Sessions.Dec()
	log.Info().Str("module", "orch").Str("sid", string(s.ID())).Msg("session closed")
}

// Kick cancels a session from outside its own goroutine.
func (o *Orchestrator) Kick(sid core.SessionID) bool {
	return o.Registry.Cancel(sid)
}

// OnBackPressure asks the policy what to do with a session that cannot keep up.
func (o *Orchestrator) OnBackPressure(sid core.SessionID) app.BackpressureAction {
	o.init()
	action := o.Policy.OnBackPressure(sid)
	if action == app.CloseSession {
		o.Kick(sid)
	}
	return action
}

// apply validates action against the session state and returns the next state.
func (o *Orchestrator) apply(s *Session, action Action) (State, error) {
	o.init()
	return Next(s.State(), action)
}

func (o *Orchestrator) commit(s *Session, next State) {
	if s.State() == StateClosed {
		return
	}
	s.setState(next)
	o.Registry.UpdateState(s.ID(), next.String())
}
