package orch

import (
	"context"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TransportInfo is what a client needs to reach its transport.
type TransportInfo struct {
	ID             string                `json:"id"`
	IceParameters  webrtc.ICEParameters  `json:"iceParameters"`
	IceCandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DtlsParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

// Join binds s to roomID (the default room when empty) and allocates its
// interactive transport.
func (o *Orchestrator) Join(ctx context.Context, s *Session, roomID domain.RoomID) (TransportInfo, error) {
	next, err := o.apply(s, ActionJoin)
	if err != nil {
		return TransportInfo{}, err
	}
	if roomID == "" {
		roomID = o.DefaultRoom
	}

	room, err := o.Rooms.GetOrCreate(ctx, roomID)
	if err != nil {
		return TransportInfo{}, err
	}
	t, err := room.Router().CreateWebRtcTransport(ctx)
	if err != nil {
		return TransportInfo{}, domain.NewEngineError("create webrtc transport", err)
	}
	room.AddTransport(t)
	s.attach(room, t)
	o.Registry.UpdateRoom(s.ID(), roomID)
	o.commit(s, next)

	log.Info().
		Str("module", "orch").
		Str("sid", string(s.ID())).
		Str("room", string(roomID)).
		Str("transport", t.ID()).
		Msg("joined")

	return TransportInfo{
		ID:             t.ID(),
		IceParameters:  t.IceParameters(),
		IceCandidates:  t.IceCandidates(),
		DtlsParameters: t.DtlsParameters(),
	}, nil
}

// RtpCapabilities reports the router capabilities of the default room.
func (o *Orchestrator) RtpCapabilities(ctx context.Context, s *Session) (core.RtpCapabilities, error) {
	if _, err := o.apply(s, ActionGetRtpCapabilities); err != nil {
		return core.RtpCapabilities{}, err
	}
	room, err := o.Rooms.GetOrCreate(ctx, o.DefaultRoom)
	if err != nil {
		return core.RtpCapabilities{}, err
	}
	return room.RtpCapabilities(), nil
}
