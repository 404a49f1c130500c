// Package ingest turns a raw RTP/RTCP UDP stream into a producer of a room
// and forwards the stream to the media engine's ingress ports.
package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// minHeaderLen is the fixed part of an RTP header; the SSRC sits at bytes 8..11.
const minHeaderLen = 12

const maxDatagram = 1500

type datagram struct {
	rtcp bool
	data []byte
}

type creation struct {
	producer core.Producer
	ssrc     domain.SSRC
	err      error
}

// Stats is a snapshot of receiver counters.
type Stats struct {
	RTPPackets  uint64      `json:"rtpPackets"`
	RTCPPackets uint64      `json:"rtcpPackets"`
	ProducerID  string      `json:"producerId,omitempty"`
	SSRC        domain.SSRC `json:"ssrc,omitempty"`
}

// Receiver owns the RTP/RTCP listeners of one room. One goroutine per socket
// streams datagrams to a single owner goroutine, which is the only place the
// producer state is mutated.
type Receiver struct {
	room      *core.Room
	cfg       Config
	transport core.IngestTransport
	metrics   *metrics.Metrics

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn
	fwdRTP   *net.UDPConn
	fwdRTCP  *net.UDPConn

	logger  zerolog.Logger
	sampled zerolog.Logger

	rtpPackets  atomic.Uint64
	rtcpPackets atomic.Uint64

	mu       sync.RWMutex
	producer core.Producer
	ssrc     domain.SSRC

	// owner goroutine state
	creating      bool
	lastFailure   time.Time
	pending       []byte
	foreignLogged bool

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// Start binds the RTP listener on cfg.Port and the RTCP listener on cfg.Port+1.
// Both binds succeed or the call fails with domain.ErrBindFailure and nothing stays bound.
func Start(ctx context.Context, room *core.Room, cfg Config, m *metrics.Metrics) (*Receiver, error) {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.New(nil)
	}
	logger := log.With().
		Str("module", "ingest").
		Str("room", string(room.ID())).
		Int("port", cfg.Port).
		Logger()

	transport, err := room.Router().CreateIngestTransport(ctx)
	if err != nil {
		return nil, domain.NewEngineError("create ingest transport", err)
	}

	rtpConn, rtcpConn, err := bindPair(cfg.ListenIP, cfg.Port)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	fwdRTP, err := dialLoopback(transport.LocalRTPPort())
	if err != nil {
		_ = errors.Join(rtpConn.Close(), rtcpConn.Close(), transport.Close())
		return nil, fmt.Errorf("dial engine rtp port: %w", err)
	}
	fwdRTCP, err := dialLoopback(transport.LocalRTCPPort())
	if err != nil {
		_ = errors.Join(rtpConn.Close(), rtcpConn.Close(), fwdRTP.Close(), transport.Close())
		return nil, fmt.Errorf("dial engine rtcp port: %w", err)
	}

	room.AddTransport(transport)

	r := &Receiver{
		room:      room,
		cfg:       cfg,
		transport: transport,
		metrics:   m,
		rtpConn:   rtpConn,
		rtcpConn:  rtcpConn,
		fwdRTP:    fwdRTP,
		fwdRTCP:   fwdRTCP,
		logger:    logger,
		sampled:   logger.Sample(&zerolog.BasicSampler{N: 100}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	r.cancel = cancel
	r.group = g

	in := make(chan datagram, 1024)
	g.Go(func() error { return r.read(gctx, rtpConn, false, in) })
	g.Go(func() error { return r.read(gctx, rtcpConn, true, in) })
	g.Go(func() error { return r.own(gctx, in) })
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks the readers.
		_ = rtpConn.Close()
		_ = rtcpConn.Close()
		return nil
	})

	logger.Info().
		Int("engine_rtp_port", transport.LocalRTPPort()).
		Int("engine_rtcp_port", transport.LocalRTCPPort()).
		Msg("receiver listening")
	return r, nil
}

func bindPair(ip string, port int) (*net.UDPConn, *net.UDPConn, error) {
	host := net.ParseIP(ip)
	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: host, Port: port})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: rtp port %d: %w", domain.ErrBindFailure, port, err)
	}
	rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: host, Port: port + 1})
	if err != nil {
		_ = rtpConn.Close()
		return nil, nil, fmt.Errorf("%w: rtcp port %d: %w", domain.ErrBindFailure, port+1, err)
	}
	return rtpConn, rtcpConn, nil
}

func dialLoopback(port int) (*net.UDPConn, error) {
	return net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
}

func (r *Receiver) read(ctx context.Context, conn *net.UDPConn, rtcp bool, out chan<- datagram) error {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", streamName(rtcp), err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case <-ctx.Done():
			return nil
		case out <- datagram{rtcp: rtcp, data: data}:
		}
	}
}

func (r *Receiver) own(ctx context.Context, in <-chan datagram) error {
	created := make(chan creation, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-created:
			r.onCreated(res)
		case d := <-in:
			if d.rtcp {
				r.onRTCP(d.data)
				continue
			}
			r.onRTP(ctx, d.data, created)
		}
	}
}

func (r *Receiver) onRTP(ctx context.Context, data []byte, created chan<- creation) {
	r.rtpPackets.Add(1)
	r.metrics.RTPPackets.WithLabelValues(string(r.room.ID())).Inc()

	producer, ssrc := r.current()
	if len(data) < minHeaderLen {
		r.metrics.MalformedPackets.WithLabelValues(string(r.room.ID())).Inc()
		r.sampled.Debug().Err(domain.ErrMalformedRtpPacket).Int("len", len(data)).Msg("short rtp datagram")
	} else {
		got := domain.SSRC(binary.BigEndian.Uint32(data[8:12]))
		switch {
		case producer == nil && !r.creating && time.Since(r.lastFailure) >= r.cfg.RetryInterval:
			r.creating = true
			r.pending = data
			r.logger.Info().Str("ssrc", got.String()).Msg("ssrc detected, creating producer")
			go r.createProducer(ctx, got, created)
		case producer != nil && got != ssrc:
			// A second SSRC does not get its own producer.
			r.metrics.ForeignPackets.WithLabelValues(string(r.room.ID())).Inc()
			if !r.foreignLogged {
				r.foreignLogged = true
				r.logger.Warn().Str("ssrc", got.String()).Str("producer_ssrc", ssrc.String()).Msg("ignoring packets of a second ssrc")
			}
		}
	}

	if producer != nil {
		r.forward(r.fwdRTP, data, false)
	}
}

func (r *Receiver) onRTCP(data []byte) {
	r.rtcpPackets.Add(1)
	r.metrics.RTCPPackets.WithLabelValues(string(r.room.ID())).Inc()
	r.forward(r.fwdRTCP, data, true)
}

func (r *Receiver) createProducer(ctx context.Context, ssrc domain.SSRC, out chan<- creation) {
	res := creation{ssrc: ssrc}
	p, err := r.transport.Produce(ctx, core.ProduceOptions{
		Kind:          r.cfg.Kind,
		RtpParameters: r.cfg.RtpParameters(ssrc),
	})
	if err != nil {
		res.err = domain.NewEngineError("produce", err)
	} else {
		res.producer = p
		if p.Paused() {
			if err := p.Resume(ctx); err != nil {
				r.logger.Warn().Err(err).Str("producer", p.ID()).Msg("resume producer")
			}
		}
	}

	select {
	case out <- res:
	case <-ctx.Done():
		if p != nil {
			_ = p.Close()
		}
	}
}

func (r *Receiver) onCreated(res creation) {
	r.creating = false
	pending := r.pending
	r.pending = nil

	if res.err != nil {
		r.lastFailure = time.Now()
		r.logger.Error().Err(res.err).Str("ssrc", res.ssrc.String()).Msg("producer creation failed")
		return
	}

	r.mu.Lock()
	r.producer = res.producer
	r.ssrc = res.ssrc
	r.mu.Unlock()

	r.room.AddProducer(res.producer, res.ssrc)
	r.metrics.ProducersCreated.WithLabelValues(string(r.room.ID())).Inc()
	r.logger.Info().Str("producer", res.producer.ID()).Str("ssrc", res.ssrc.String()).Msg("producer ready")

	if pending != nil {
		r.forward(r.fwdRTP, pending, false)
	}
}

// forward is fire-and-forget; failures are counted and logged at a sampled rate.
func (r *Receiver) forward(conn *net.UDPConn, data []byte, rtcp bool) {
	if _, err := conn.Write(data); err != nil {
		r.metrics.ForwardErrors.WithLabelValues(string(r.room.ID()), streamName(rtcp)).Inc()
		r.sampled.Warn().Err(fmt.Errorf("%w: %w", domain.ErrForwardFailure, err)).Str("stream", streamName(rtcp)).Msg("forward")
	}
}

func (r *Receiver) current() (core.Producer, domain.SSRC) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.producer, r.ssrc
}

// Producer returns the producer created for this receiver, if any.
func (r *Receiver) Producer() (core.Producer, bool) {
	p, _ := r.current()
	return p, p != nil
}

// Stats reads the packet counters and the current producer.
func (r *Receiver) Stats() Stats {
	p, ssrc := r.current()
	s := Stats{
		RTPPackets:  r.rtpPackets.Load(),
		RTCPPackets: r.rtcpPackets.Load(),
	}
	if p != nil {
		s.ProducerID = p.ID()
		s.SSRC = ssrc
	}
	return s
}

// Transport is the engine transport the receiver forwards to.
func (r *Receiver) Transport() core.IngestTransport { return r.transport }

// RTPAddr is the local address of the RTP listener.
func (r *Receiver) RTPAddr() *net.UDPAddr { return r.rtpConn.LocalAddr().(*net.UDPAddr) }

// Wait blocks until the receiver stops and returns the first listener error.
func (r *Receiver) Wait() error { return r.group.Wait() }

// Close stops the listeners and releases the ingest transport.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		err := r.group.Wait()
		r.room.RemoveTransport(r.transport.ID())
		r.closeErr = errors.Join(err, r.fwdRTP.Close(), r.fwdRTCP.Close(), r.transport.Close())
		r.logger.Info().Msg("receiver closed")
	})
	return r.closeErr
}

func streamName(rtcp bool) string {
	if rtcp {
		return "rtcp"
	}
	return "rtp"
}
