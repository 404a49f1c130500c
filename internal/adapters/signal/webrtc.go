package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleConnectTransport(
	ctx context.Context,
	s *orch.Session,
	conn core.SignalConnection,
	data []byte,
) {
	var p connectTransportRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connect-transport payload")
		ctl.replyError(s, conn, actionConnectTransport, errors.New("bad_payload"))
		return
	}
	if p.DtlsParameters == nil {
		ctl.replyError(s, conn, actionConnectTransport, errors.New("dtlsParameters required"))
		return
	}

	dtls, err := p.DtlsParameters.toWebRTC()
	if err != nil {
		ctl.replyError(s, conn, actionConnectTransport, err)
		return
	}
	params := core.ConnectParams{DtlsParameters: dtls}
	if p.IceParameters != nil {
		ice := p.IceParameters.toWebRTC()
		params.IceParameters = &ice
	}
	if params.IceCandidates, err = toICECandidates(p.IceCandidates); err != nil {
		ctl.replyError(s, conn, actionConnectTransport, err)
		return
	}

	if err := ctl.Orch.ConnectTransport(ctx, s, params); err != nil {
		ctl.replyError(s, conn, actionConnectTransport, err)
		return
	}
	ctl.sendJSON(s, conn, ack{Action: actionTransportConnected})
}

func (ctl *SignalWSController) handleConsume(
	ctx context.Context,
	s *orch.Session,
	conn core.SignalConnection,
	data []byte,
) {
	var p consumeRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consume payload")
		ctl.replyError(s, conn, actionConsume, errors.New("bad_payload"))
		return
	}
	if p.RtpCapabilities == nil {
		ctl.replyError(s, conn, actionConsume, errors.New("rtpCapabilities required"))
		return
	}

	info, err := ctl.Orch.Consume(ctx, s, *p.RtpCapabilities)
	if err != nil {
		ctl.replyError(s, conn, actionConsume, err)
		return
	}
	ctl.sendJSON(s, conn, consumerCreated{
		Action:        actionConsumerCreated,
		ID:            info.ID,
		ProducerID:    info.ProducerID,
		Kind:          info.Kind,
		RtpParameters: info.RtpParameters,
	})
}

func (ctl *SignalWSController) handleResumeConsumer(
	ctx context.Context,
	s *orch.Session,
	conn core.SignalConnection,
) {
	if err := ctl.Orch.ResumeConsumer(ctx, s); err != nil {
		ctl.replyError(s, conn, actionResumeConsumer, err)
		return
	}
	ctl.sendJSON(s, conn, ack{Action: actionConsumerResumed})
}
