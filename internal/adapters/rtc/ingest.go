package rtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

const maxPacket = 1500

// IngestTransport listens on two loopback ports for plain RTP and RTCP and
// routes RTP packets to producers by SSRC.
type IngestTransport struct {
	id       string
	router   *Router
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn
	logger   zerolog.Logger
	sampled  zerolog.Logger

	mu     sync.RWMutex
	bySSRC map[uint32]*Producer

	senderReports atomic.Uint64
	unknownSSRC   atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
}

func newIngestTransport(ctx context.Context, r *Router) (*IngestTransport, error) {
	loopback := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
	rtpConn, err := net.ListenUDP("udp4", loopback)
	if err != nil {
		return nil, fmt.Errorf("listen rtp: %w", err)
	}
	rtcpConn, err := net.ListenUDP("udp4", loopback)
	if err != nil {
		_ = rtpConn.Close()
		return nil, fmt.Errorf("listen rtcp: %w", err)
	}

	t := &IngestTransport{
		id:       uuid.NewString(),
		router:   r,
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		bySSRC:   make(map[uint32]*Producer),
	}
	t.logger = r.logger.With().Str("transport", t.id).Logger()
	t.sampled = t.logger.Sample(&zerolog.BasicSampler{N: 100})
	// The transport lives until Close, not until the creating request ends.
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))

	t.wg.Add(2)
	go t.readRTP()
	go t.readRTCP()

	t.logger.Info().Int("rtp_port", t.LocalRTPPort()).Int("rtcp_port", t.LocalRTCPPort()).Msg("ingest transport created")
	return t, nil
}

func (t *IngestTransport) ID() string { return t.id }

func (t *IngestTransport) LocalRTPPort() int  { return t.rtpConn.LocalAddr().(*net.UDPAddr).Port }
func (t *IngestTransport) LocalRTCPPort() int { return t.rtcpConn.LocalAddr().(*net.UDPAddr).Port }

func (t *IngestTransport) readRTP() {
	defer t.wg.Done()
	buf := make([]byte, maxPacket)
	for {
		n, _, err := t.rtpConn.ReadFromUDP(buf)
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Error().Err(err).Msg("rtp read error, stopping")
			}
			return
		}
		// The relay works asynchronously, so the packet must own its payload.
		data := make([]byte, n)
		copy(data, buf[:n])
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(data); err != nil {
			t.sampled.Debug().Err(fmt.Errorf("%w: %w", domain.ErrMalformedRtpPacket, err)).Msg("drop rtp")
			continue
		}

		t.mu.RLock()
		p, ok := t.bySSRC[pkt.SSRC]
		t.mu.RUnlock()
		if !ok {
			t.unknownSSRC.Add(1)
			continue
		}
		p.deliver(pkt)
	}
}

func (t *IngestTransport) readRTCP() {
	defer t.wg.Done()
	buf := make([]byte, maxPacket)
	for {
		n, _, err := t.rtcpConn.ReadFromUDP(buf)
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Error().Err(err).Msg("rtcp read error, stopping")
			}
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			t.sampled.Debug().Err(err).Msg("drop rtcp")
			continue
		}
		for _, pkt := range pkts {
			if sr, ok := pkt.(*rtcp.SenderReport); ok {
				t.senderReports.Add(1)
				t.sampled.Debug().
					Str("ssrc", domain.SSRC(sr.SSRC).String()).
					Uint32("packets", sr.PacketCount).
					Uint32("octets", sr.OctetCount).
					Msg("sender report")
			}
		}
	}
}

// SenderReports counts RTCP sender reports received from the source.
func (t *IngestTransport) SenderReports() uint64 { return t.senderReports.Load() }

func (t *IngestTransport) Produce(_ context.Context, opts core.ProduceOptions) (core.Producer, error) {
	if t.closed.Load() {
		return nil, errors.New("transport closed")
	}
	if len(opts.RtpParameters.Codecs) == 0 || len(opts.RtpParameters.Encodings) == 0 {
		return nil, errors.New("rtp parameters need a codec and an encoding")
	}
	codec, ok := t.router.routerCodec(opts.RtpParameters.Codecs[0])
	if !ok {
		return nil, fmt.Errorf("codec %s not supported by router", opts.RtpParameters.Codecs[0].MimeType)
	}
	ssrc := uint32(opts.RtpParameters.Encodings[0].SSRC)

	p := &Producer{
		id:        uuid.NewString(),
		kind:      opts.Kind,
		params:    opts.RtpParameters,
		ssrc:      ssrc,
		codec:     codec,
		transport: t,
	}
	p.relay = NewRelay(t.ctx, t.logger.With().Str("producer", p.id).Logger())
	p.paused.Store(opts.Paused)

	t.mu.Lock()
	if _, taken := t.bySSRC[ssrc]; taken {
		t.mu.Unlock()
		p.relay.Stop()
		return nil, fmt.Errorf("ssrc %s already produced", domain.SSRC(ssrc))
	}
	t.bySSRC[ssrc] = p
	t.mu.Unlock()
	t.router.addProducer(p)

	t.logger.Info().Str("producer", p.id).Str("ssrc", domain.SSRC(ssrc).String()).Str("mime", codec.MimeType).Msg("producer created")
	return p, nil
}

func (t *IngestTransport) removeProducer(p *Producer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.bySSRC[p.ssrc]; ok && cur == p {
		delete(t.bySSRC, p.ssrc)
	}
}

func (t *IngestTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()
		err = errors.Join(t.rtpConn.Close(), t.rtcpConn.Close())
		t.wg.Wait()

		t.mu.RLock()
		producers := make([]*Producer, 0, len(t.bySSRC))
		for _, p := range t.bySSRC {
			producers = append(producers, p)
		}
		t.mu.RUnlock()
		for _, p := range producers {
			_ = p.Close()
		}
		t.router.untrack(t.id)
		t.logger.Info().Msg("ingest transport closed")
	})
	return err
}
