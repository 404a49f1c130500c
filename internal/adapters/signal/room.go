package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxRoomID = 64

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	s *orch.Session,
	conn core.SignalConnection,
	data []byte,
) {
	var p joinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.replyError(s, conn, actionJoin, errors.New("bad_payload"))
		return
	}
	if len(p.RoomID) > maxRoomID {
		ctl.replyError(s, conn, actionJoin, errors.New("room id too long"))
		return
	}

	info, err := ctl.Orch.Join(ctx, s, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.replyError(s, conn, actionJoin, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(s.ID())).Str("transport", info.ID).Msg("join")

	ctl.sendJSON(s, conn, transportCreated{
		Action:         actionTransportCreated,
		TransportID:    info.ID,
		IceParameters:  fromICEParameters(info.IceParameters),
		IceCandidates:  fromICECandidates(info.IceCandidates),
		DtlsParameters: fromDTLSParameters(info.DtlsParameters),
	})
}

func (ctl *SignalWSController) handleRtpCapabilities(
	ctx context.Context,
	s *orch.Session,
	conn core.SignalConnection,
) {
	caps, err := ctl.Orch.RtpCapabilities(ctx, s)
	if err != nil {
		ctl.replyError(s, conn, actionGetRtpCapabilities, err)
		return
	}
	ctl.sendJSON(s, conn, rtpCapabilitiesResponse{
		Action:          actionRtpCapabilities,
		RtpCapabilities: caps,
	})
}
