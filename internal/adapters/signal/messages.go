package signal

import (
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

const (
	actionJoin               = "join"
	actionGetRtpCapabilities = "get-rtp-capabilities"
	actionConnectTransport   = "connect-transport"
	actionConsume            = "consume"
	actionResumeConsumer     = "resume-consumer"
	actionPing               = "ping"

	actionTransportCreated   = "transport-created"
	actionRtpCapabilities    = "rtp-capabilities"
	actionTransportConnected = "transport-connected"
	actionConsumerCreated    = "consumer-created"
	actionConsumerResumed    = "consumer-resumed"
	actionPong               = "pong"
	actionError              = "error"
)

type envelope struct {
	Action string `json:"action"`
}

type joinRequest struct {
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

type connectTransportRequest struct {
	DtlsParameters *DtlsParameters `json:"dtlsParameters"`
	IceParameters  *IceParameters  `json:"iceParameters,omitempty"`
	IceCandidates  []IceCandidate  `json:"iceCandidates,omitempty"`
}

type consumeRequest struct {
	RtpCapabilities *core.RtpCapabilities `json:"rtpCapabilities"`
}

type transportCreated struct {
	Action         string         `json:"action"`
	TransportID    string         `json:"transportId"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type rtpCapabilitiesResponse struct {
	Action          string               `json:"action"`
	RtpCapabilities core.RtpCapabilities `json:"rtpCapabilities"`
}

type consumerCreated struct {
	Action        string             `json:"action"`
	ID            string             `json:"id"`
	ProducerID    string             `json:"producerId"`
	Kind          domain.MediaKind   `json:"kind"`
	RtpParameters core.RtpParameters `json:"rtpParameters"`
}

type ack struct {
	Action string `json:"action"`
}

type errorResponse struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}
