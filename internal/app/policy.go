package app

import "github.com/dkeye/Stream/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropMessage
	CloseSession
)

// Policy decides what happens to a session whose outbound queue is full.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

// SimplePolicy closes slow sessions; signalling replies are not safe to drop.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.SessionID) BackpressureAction {
	return CloseSession
}
