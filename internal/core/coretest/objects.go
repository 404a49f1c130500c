package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type Producer struct {
	id     string
	kind   domain.MediaKind
	params core.RtpParameters

	mu      sync.Mutex
	paused  bool
	closed  bool
	resumes int
}

// NewProducer builds a standalone producer, useful for seeding rooms directly.
func NewProducer(id string, kind domain.MediaKind, params core.RtpParameters) *Producer {
	return &Producer{id: id, kind: kind, params: params}
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() domain.MediaKind            { return p.kind }
func (p *Producer) RtpParameters() core.RtpParameters { return p.params }

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Resumes counts Resume calls.
func (p *Producer) Resumes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumes
}

func (p *Producer) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *Producer) Resume(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	p.paused = false
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type Consumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	params     core.RtpParameters

	mu        sync.Mutex
	paused    bool
	closed    bool
	resumes   int
	resumeErr error
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) ProducerID() string                { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind            { return c.kind }
func (c *Consumer) RtpParameters() core.RtpParameters { return c.params }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Resumes counts Resume calls that actually unpaused the consumer.
func (c *Consumer) Resumes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumes
}

func (c *Consumer) Pause(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *Consumer) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resumeErr != nil {
		return c.resumeErr
	}
	if c.paused {
		c.resumes++
	}
	c.paused = false
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// H264Capability is the codec the tests negotiate routers with.
func H264Capability() core.RtpCodecCapability {
	return core.RtpCodecCapability{
		Kind:                 domain.KindVideo,
		MimeType:             "video/H264",
		PreferredPayloadType: 96,
		ClockRate:            90000,
		Parameters: map[string]any{
			"packetization-mode":      1,
			"profile-level-id":        "42e01f",
			"level-asymmetry-allowed": 1,
		},
	}
}

// H264Parameters are producer parameters matching H264Capability.
func H264Parameters(ssrc domain.SSRC) core.RtpParameters {
	c := H264Capability()
	return core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{
			MimeType:    c.MimeType,
			PayloadType: c.PreferredPayloadType,
			ClockRate:   c.ClockRate,
			Parameters:  c.Parameters,
		}},
		Encodings: []core.RtpEncodingParameters{{SSRC: ssrc}},
		Rtcp:      core.RtcpParameters{CNAME: "test"},
	}
}
