package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBindFailure means a UDP listen port for the ingest receiver is unavailable.
	ErrBindFailure = errors.New("bind failure")
	// ErrNoProducerAvailable is reported to clients verbatim.
	ErrNoProducerAvailable = errors.New("No producer available")
	ErrInvalidSessionState = errors.New("invalid session state")
	ErrMalformedRtpPacket  = errors.New("malformed rtp packet")
	ErrForwardFailure      = errors.New("forward failure")
	ErrEngineOperation     = errors.New("engine operation failed")
)

// EngineError wraps a rejected media engine call.
type EngineError struct {
	Op  string
	Err error
}

func NewEngineError(op string, err error) *EngineError {
	return &EngineError{Op: op, Err: err}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() []error { return []error{ErrEngineOperation, e.Err} }
