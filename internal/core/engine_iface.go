package core

import (
	"context"

	"github.com/dkeye/Stream/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Engine is the media engine capability surface. It owns ICE/DTLS/SRTP
// and codec negotiation; everything above it only wires objects together.
type Engine interface {
	// CreateRouter negotiates a routing context for the given codec list.
	CreateRouter(ctx context.Context, codecs []RtpCodecCapability) (Router, error)
	Close() error
}

// Router is a capability-negotiated routing context. Producers and consumers
// of one room exist within one router.
type Router interface {
	ID() string
	RtpCapabilities() RtpCapabilities
	// CreateIngestTransport opens local loopback ports raw RTP/RTCP is forwarded to.
	CreateIngestTransport(ctx context.Context) (IngestTransport, error)
	// CreateWebRtcTransport allocates an interactive transport for one client.
	CreateWebRtcTransport(ctx context.Context) (WebRtcTransport, error)
}

type Transport interface {
	ID() string
	Close() error
}

type ProduceOptions struct {
	Kind          domain.MediaKind
	RtpParameters RtpParameters
	Paused        bool
}

type IngestTransport interface {
	Transport
	LocalRTPPort() int
	LocalRTCPPort() int
	Produce(ctx context.Context, opts ProduceOptions) (Producer, error)
}

// ConnectParams carries the peer side of the interactive transport handshake.
// The ICE fields are optional for engines that run ICE-lite without peer credentials.
type ConnectParams struct {
	DtlsParameters webrtc.DTLSParameters
	IceParameters  *webrtc.ICEParameters
	IceCandidates  []webrtc.ICECandidate
}

type ConsumeOptions struct {
	ProducerID      string
	RtpCapabilities RtpCapabilities
	Paused          bool
}

type WebRtcTransport interface {
	Transport
	IceParameters() webrtc.ICEParameters
	IceCandidates() []webrtc.ICECandidate
	DtlsParameters() webrtc.DTLSParameters
	Connect(ctx context.Context, params ConnectParams) error
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
}

// Producer is one inbound media stream available for distribution.
type Producer interface {
	ID() string
	Kind() domain.MediaKind
	RtpParameters() RtpParameters
	Paused() bool
	Closed() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close() error
}

// Consumer is one outbound stream bound to an interactive transport.
// Engines create consumers paused.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	RtpParameters() RtpParameters
	Paused() bool
	Closed() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close() error
}
