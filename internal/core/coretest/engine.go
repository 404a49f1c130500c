// Package coretest provides an in-memory media engine for tests.
// Ingest transports bind real loopback sockets so forwarded datagrams can be observed.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Stream/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Engine is a fake core.Engine. Error fields inject failures into the matching call.
type Engine struct {
	CreateDelay  time.Duration
	ProduceDelay time.Duration

	RouterErr  error
	IngestErr  error
	WebRtcErr  error
	ProduceErr error
	ConnectErr error
	ConsumeErr error
	// ResumeErr is returned by Resume of consumers created afterwards.
	ResumeErr error

	// ProducePaused makes Produce return paused producers.
	ProducePaused bool

	routers      atomic.Int32
	produceCalls atomic.Int32
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) RouterCount() int  { return int(e.routers.Load()) }
func (e *Engine) ProduceCalls() int { return int(e.produceCalls.Load()) }

func (e *Engine) CreateRouter(ctx context.Context, codecs []core.RtpCodecCapability) (core.Router, error) {
	if err := sleep(ctx, e.CreateDelay); err != nil {
		return nil, err
	}
	if e.RouterErr != nil {
		return nil, e.RouterErr
	}
	e.routers.Add(1)
	return &Router{
		id:        uuid.NewString(),
		engine:    e,
		caps:      core.RtpCapabilities{Codecs: codecs},
		producers: make(map[string]*Producer),
	}, nil
}

func (e *Engine) Close() error { return nil }

type Router struct {
	id     string
	engine *Engine
	caps   core.RtpCapabilities

	mu        sync.Mutex
	producers map[string]*Producer
}

func (r *Router) ID() string                            { return r.id }
func (r *Router) RtpCapabilities() core.RtpCapabilities { return r.caps }

func (r *Router) CreateIngestTransport(_ context.Context) (core.IngestTransport, error) {
	if r.engine.IngestErr != nil {
		return nil, r.engine.IngestErr
	}
	rtpConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	rtcpConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		_ = rtpConn.Close()
		return nil, err
	}
	t := &IngestTransport{
		id:       uuid.NewString(),
		router:   r,
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		RTP:      make(chan []byte, 256),
		RTCP:     make(chan []byte, 256),
	}
	go capture(rtpConn, t.RTP)
	go capture(rtcpConn, t.RTCP)
	return t, nil
}

func (r *Router) CreateWebRtcTransport(_ context.Context) (core.WebRtcTransport, error) {
	if r.engine.WebRtcErr != nil {
		return nil, r.engine.WebRtcErr
	}
	return &WebRtcTransport{id: uuid.NewString(), router: r}, nil
}

// Seed registers a producer built with NewProducer so transports can consume it.
func (r *Router) Seed(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

// IngestTransport captures everything forwarded to its local ports.
type IngestTransport struct {
	id       string
	router   *Router
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn
	closed   atomic.Bool

	RTP  chan []byte
	RTCP chan []byte
}

func (t *IngestTransport) ID() string { return t.id }

func (t *IngestTransport) LocalRTPPort() int  { return t.rtpConn.LocalAddr().(*net.UDPAddr).Port }
func (t *IngestTransport) LocalRTCPPort() int { return t.rtcpConn.LocalAddr().(*net.UDPAddr).Port }

func (t *IngestTransport) Closed() bool { return t.closed.Load() }

func (t *IngestTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return errors.Join(t.rtpConn.Close(), t.rtcpConn.Close())
}

func (t *IngestTransport) Produce(ctx context.Context, opts core.ProduceOptions) (core.Producer, error) {
	e := t.router.engine
	e.produceCalls.Add(1)
	if err := sleep(ctx, e.ProduceDelay); err != nil {
		return nil, err
	}
	if e.ProduceErr != nil {
		return nil, e.ProduceErr
	}
	p := &Producer{
		id:     uuid.NewString(),
		kind:   opts.Kind,
		params: opts.RtpParameters,
	}
	p.paused = opts.Paused || e.ProducePaused
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

type WebRtcTransport struct {
	id     string
	router *Router

	mu        sync.Mutex
	connected *core.ConnectParams
	closed    bool
}

func (t *WebRtcTransport) ID() string { return t.id }

func (t *WebRtcTransport) IceParameters() webrtc.ICEParameters {
	return webrtc.ICEParameters{UsernameFragment: "ufrag-" + t.id[:8], Password: "pwd-" + t.id, ICELite: true}
}

func (t *WebRtcTransport) IceCandidates() []webrtc.ICECandidate {
	return []webrtc.ICECandidate{{
		Foundation: "1",
		Priority:   1,
		Address:    "127.0.0.1",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       40000,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	}}
}

func (t *WebRtcTransport) DtlsParameters() webrtc.DTLSParameters {
	return webrtc.DTLSParameters{
		Role:         webrtc.DTLSRoleAuto,
		Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}
}

func (t *WebRtcTransport) Connect(_ context.Context, params core.ConnectParams) error {
	if t.router.engine.ConnectErr != nil {
		return t.router.engine.ConnectErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = &params
	return nil
}

// Connected returns the params of the last successful Connect.
func (t *WebRtcTransport) Connected() (*core.ConnectParams, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected, t.connected != nil
}

func (t *WebRtcTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *WebRtcTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *WebRtcTransport) Consume(_ context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if t.router.engine.ConsumeErr != nil {
		return nil, t.router.engine.ConsumeErr
	}
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, fmt.Errorf("producer %s not found", opts.ProducerID)
	}
	params := p.RtpParameters()
	for _, codec := range params.Codecs {
		if !opts.RtpCapabilities.Supports(codec) {
			return nil, fmt.Errorf("cannot consume %s", codec.MimeType)
		}
	}
	c := &Consumer{
		id:         uuid.NewString(),
		producerID: p.ID(),
		kind:       p.Kind(),
		params:     params,
	}
	c.paused = opts.Paused
	c.resumeErr = t.router.engine.ResumeErr
	return c, nil
}

func capture(conn *net.UDPConn, out chan<- []byte) {
	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case out <- pkt:
		default:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
