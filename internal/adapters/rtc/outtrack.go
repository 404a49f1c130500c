package rtc

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	case TrackStateDelete:
		return "delete"
	}
	return "unknown"
}

// packetWriter is the part of webrtc.TrackLocalStaticRTP an out-track needs.
type packetWriter interface {
	WriteRTP(p *rtp.Packet) error
}

var _ packetWriter = (*webrtc.TrackLocalStaticRTP)(nil)

// OutTrack is the write side of one consumer. Muted tracks are skipped by the
// relay, deleted ones are dropped from it.
type OutTrack struct {
	ConsumerID string
	track      packetWriter
	state      atomic.Int32
	written    atomic.Uint64
}

func NewOutTrack(consumerID string, track packetWriter, muted bool) *OutTrack {
	ot := &OutTrack{ConsumerID: consumerID, track: track}
	if muted {
		ot.MarkMuted()
	}
	return ot
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	// A deleted track never comes back.
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

func (ot *OutTrack) Write(pkt *rtp.Packet) error {
	if err := ot.track.WriteRTP(pkt); err != nil {
		return err
	}
	ot.written.Add(1)
	return nil
}

// Written counts packets delivered to the track.
func (ot *OutTrack) Written() uint64 { return ot.written.Load() }
