package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/pion/rtp"
)

// Producer is a stream fed by an ingest transport and fanned out by its relay.
type Producer struct {
	id        string
	kind      domain.MediaKind
	params    core.RtpParameters
	ssrc      uint32
	codec     core.RtpCodecCapability
	transport *IngestTransport
	relay     *Relay

	paused    atomic.Bool
	closed    atomic.Bool
	packets   atomic.Uint64
	closeOnce sync.Once
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() domain.MediaKind            { return p.kind }
func (p *Producer) RtpParameters() core.RtpParameters { return p.params }
func (p *Producer) Paused() bool                      { return p.paused.Load() }
func (p *Producer) Closed() bool                      { return p.closed.Load() }

// Packets counts RTP packets handed to the relay.
func (p *Producer) Packets() uint64 { return p.packets.Load() }

func (p *Producer) Pause(context.Context) error {
	p.paused.Store(true)
	return nil
}

func (p *Producer) Resume(context.Context) error {
	p.paused.Store(false)
	return nil
}

func (p *Producer) deliver(pkt *rtp.Packet) {
	if p.paused.Load() || p.closed.Load() {
		return
	}
	if p.relay.Push(pkt) {
		p.packets.Add(1)
	}
}

func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.relay.Stop()
		p.transport.removeProducer(p)
		p.transport.router.removeProducer(p.id)
		p.transport.logger.Info().Str("producer", p.id).Msg("producer closed")
	})
	return nil
}
