package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_mock.go -package=mocks

// SessionID identifies one signalling connection. It is random per socket and
// unrelated to the client cookie.
type SessionID string

// Frame is one encoded signalling message.
type Frame []byte

// SignalConnection is the outbound half of a signalling socket. TrySend never
// blocks; a full queue is reported so the backpressure policy can decide.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
