package orch

import (
	"fmt"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type State int

const (
	StateInit State = iota
	StateJoined
	StateConnected
	StateConsuming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateJoined:
		return "joined"
	case StateConnected:
		return "connected"
	case StateConsuming:
		return "consuming"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Action string

const (
	ActionJoin               Action = "join"
	ActionGetRtpCapabilities Action = "get-rtp-capabilities"
	ActionConnectTransport   Action = "connect-transport"
	ActionConsume            Action = "consume"
	ActionResumeConsumer     Action = "resume-consumer"
)

// transitions maps every action to the states it is valid in and the state it leads to.
var transitions = map[Action]map[State]State{
	ActionJoin: {
		StateInit: StateJoined,
	},
	ActionGetRtpCapabilities: {
		StateInit:      StateInit,
		StateJoined:    StateJoined,
		StateConnected: StateConnected,
		StateConsuming: StateConsuming,
	},
	ActionConnectTransport: {
		StateJoined: StateConnected,
	},
	ActionConsume: {
		StateConnected: StateConsuming,
		StateConsuming: StateConsuming,
	},
	ActionResumeConsumer: {
		StateJoined:    StateJoined,
		StateConnected: StateConnected,
		StateConsuming: StateConsuming,
	},
}

// Next returns the state action leads to from state, or ErrInvalidSessionState.
func Next(state State, action Action) (State, error) {
	allowed, ok := transitions[action]
	if !ok {
		return state, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidSessionState, action)
	}
	next, ok := allowed[state]
	if !ok {
		return state, fmt.Errorf("%w: %s not allowed in state %s", domain.ErrInvalidSessionState, action, state)
	}
	return next, nil
}

// Session is the signalling state of one client connection. It holds at most
// one interactive transport. Actions are applied by a single goroutine; the
// mutex only guards readers such as the HTTP API.
type Session struct {
	id core.SessionID

	mu        sync.RWMutex
	state     State
	room      *core.Room
	transport core.WebRtcTransport
}

func NewSession(id core.SessionID) *Session {
	return &Session{id: id}
}

func (s *Session) ID() core.SessionID { return s.id }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Room() *core.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) Transport() core.WebRtcTransport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) attach(room *core.Room, t core.WebRtcTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	s.transport = t
}
