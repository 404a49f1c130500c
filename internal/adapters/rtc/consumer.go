package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Consumer sends one producer to one WebRTC transport through an RTPSender.
// Pausing mutes its out-track on the producer relay.
type Consumer struct {
	id        string
	producer  *Producer
	transport *WebRtcTransport
	params    core.RtpParameters
	track     *webrtc.TrackLocalStaticRTP
	sender    *webrtc.RTPSender
	out       *OutTrack
	logger    zerolog.Logger

	keyframeRequests atomic.Uint64
	nacks            atomic.Uint64

	mu      sync.Mutex
	paused  bool
	closed  bool
	started bool
}

func newConsumer(t *WebRtcTransport, p *Producer, codec core.RtpCodecParameters, mid string, paused bool) (*Consumer, error) {
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(toCodecCapability(p.codec), string(p.kind), "stream-"+p.id)
	if err != nil {
		return nil, domain.NewEngineError("local track", err)
	}
	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, domain.NewEngineError("rtp sender", err)
	}

	var ssrc domain.SSRC
	if enc := sender.GetParameters().Encodings; len(enc) > 0 {
		ssrc = domain.SSRC(enc[0].SSRC)
	}

	c := &Consumer{
		id:        id,
		producer:  p,
		transport: t,
		track:     track,
		sender:    sender,
		out:       NewOutTrack(id, track, paused),
		paused:    paused,
		params: core.RtpParameters{
			Mid:       mid,
			Codecs:    []core.RtpCodecParameters{codec},
			Encodings: []core.RtpEncodingParameters{{SSRC: ssrc}},
			Rtcp:      core.RtcpParameters{CNAME: "stream-" + p.id, ReducedSize: true},
		},
		logger: t.logger.With().Str("consumer", id).Str("producer", p.id).Logger(),
	}
	p.relay.AddOutTrack(c.out)
	return c, nil
}

// start begins sending once the transport is connected.
func (c *Consumer) start() {
	c.mu.Lock()
	if c.closed || c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if err := c.sender.Send(c.sender.GetParameters()); err != nil {
		c.logger.Error().Err(err).Msg("sender start")
		c.out.MarkDelete()
		return
	}
	go c.readRTCP()
	c.logger.Info().Msg("sending")
}

// readRTCP drains receiver feedback so the interceptors keep working.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug().Err(err).Msg("rtcp read stopped")
			}
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.keyframeRequests.Add(1)
			case *rtcp.TransportLayerNack:
				c.nacks.Add(1)
			}
		}
	}
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) ProducerID() string                { return c.producer.id }
func (c *Consumer) Kind() domain.MediaKind            { return c.producer.kind }
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

func (c *Consumer) Pause(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("consumer closed")
	}
	c.paused = true
	c.out.MarkMuted()
	return nil
}

func (c *Consumer) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("consumer closed")
	}
	c.paused = false
	c.out.MarkOk()
	return nil
}

// KeyframeRequests counts PLI and FIR packets received from the client.
func (c *Consumer) KeyframeRequests() uint64 { return c.keyframeRequests.Load() }

func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.out.MarkDelete()
	c.transport.removeConsumer(c.id)
	err := c.sender.Stop()
	c.logger.Info().Msg("consumer closed")
	return err
}
