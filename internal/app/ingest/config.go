package ingest

import (
	"time"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// Config describes the stream an external encoder pushes to the receiver.
type Config struct {
	// ListenIP restricts the UDP listeners; empty listens on all interfaces.
	ListenIP string
	// Port receives RTP, Port+1 receives RTCP.
	Port        int
	Kind        domain.MediaKind
	MimeType    string
	PayloadType uint8
	ClockRate   uint32
	Parameters  map[string]any
	CNAME       string
	// RetryInterval gates producer creation retries after a failed attempt.
	RetryInterval time.Duration
}

// DefaultConfig receives H264 on port 5004.
func DefaultConfig() Config {
	return Config{
		Port:        5004,
		Kind:        domain.KindVideo,
		MimeType:    "video/H264",
		PayloadType: 96,
		ClockRate:   90000,
		Parameters: map[string]any{
			"packetization-mode":      1,
			"profile-level-id":        "42e01f",
			"level-asymmetry-allowed": 1,
		},
		CNAME:         "rtp-ingest",
		RetryInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Kind == "" {
		c.Kind = d.Kind
	}
	if c.MimeType == "" {
		c.MimeType = d.MimeType
	}
	if c.PayloadType == 0 {
		c.PayloadType = d.PayloadType
	}
	if c.ClockRate == 0 {
		c.ClockRate = d.ClockRate
	}
	if c.Parameters == nil {
		c.Parameters = d.Parameters
	}
	if c.CNAME == "" {
		c.CNAME = d.CNAME
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	return c
}

// Codec is the router capability matching this stream.
func (c Config) Codec() core.RtpCodecCapability {
	c = c.withDefaults()
	return core.RtpCodecCapability{
		Kind:                 c.Kind,
		MimeType:             c.MimeType,
		PreferredPayloadType: c.PayloadType,
		ClockRate:            c.ClockRate,
		Parameters:           c.Parameters,
		RtcpFeedback: []core.RtcpFeedback{
			{Type: "nack"},
			{Type: "nack", Parameter: "pli"},
			{Type: "ccm", Parameter: "fir"},
			{Type: "goog-remb"},
		},
	}
}

// RtpParameters are the producer parameters for a stream detected with ssrc.
func (c Config) RtpParameters(ssrc domain.SSRC) core.RtpParameters {
	c = c.withDefaults()
	return core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{
			MimeType:    c.MimeType,
			PayloadType: c.PayloadType,
			ClockRate:   c.ClockRate,
			Parameters:  c.Parameters,
		}},
		Encodings: []core.RtpEncodingParameters{{SSRC: ssrc}},
		Rtcp:      core.RtcpParameters{CNAME: c.CNAME, ReducedSize: true},
	}
}
