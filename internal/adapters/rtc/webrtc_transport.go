package rtc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var ErrMissingIceParameters = errors.New("peer ice parameters required")

// WebRtcTransport is one ORTC ICE+DTLS stack. Senders created before DTLS is
// up are started once it connects.
type WebRtcTransport struct {
	id     string
	router *Router
	logger zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	iceParams  webrtc.ICEParameters
	candidates []webrtc.ICECandidate
	dtlsParams webrtc.DTLSParameters

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	connected bool
	started   bool
	consumers map[string]*Consumer
	pending   []*Consumer
	nextMid   int
	closed    bool
}

func newWebRtcTransport(ctx context.Context, r *Router) (*WebRtcTransport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: r.iceServers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}

	t := &WebRtcTransport{
		id:        uuid.NewString(),
		router:    r,
		gatherer:  gatherer,
		consumers: make(map[string]*Consumer),
	}
	t.logger = r.logger.With().Str("transport", t.id).Logger()
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		t.cancel()
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		t.cancel()
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	if t.iceParams, err = gatherer.GetLocalParameters(); err != nil {
		t.closeStack()
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	if t.candidates, err = gatherer.GetLocalCandidates(); err != nil {
		t.closeStack()
		return nil, fmt.Errorf("local ice candidates: %w", err)
	}

	t.ice = r.api.NewICETransport(gatherer)
	t.ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		t.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICETransportStateFailed || s == webrtc.ICETransportStateClosed {
			t.cancel()
		}
	})

	if t.dtls, err = r.api.NewDTLSTransport(t.ice, nil); err != nil {
		t.closeStack()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	t.dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		t.logger.Info().Str("dtls_state", s.String()).Msg("DTLS state")
		if s == webrtc.DTLSTransportStateConnected {
			t.onConnected()
		}
	})
	if t.dtlsParams, err = t.dtls.GetLocalParameters(); err != nil {
		t.closeStack()
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	t.logger.Info().Int("candidates", len(t.candidates)).Msg("webrtc transport created")
	return t, nil
}

func (t *WebRtcTransport) ID() string                            { return t.id }
func (t *WebRtcTransport) IceParameters() webrtc.ICEParameters   { return t.iceParams }
func (t *WebRtcTransport) IceCandidates() []webrtc.ICECandidate  { return t.candidates }
func (t *WebRtcTransport) DtlsParameters() webrtc.DTLSParameters { return t.dtlsParams }

// Connect starts ICE as the controlled agent and DTLS on top of it. The
// handshake runs in the background; Connect only validates and kicks it off.
func (t *WebRtcTransport) Connect(_ context.Context, params core.ConnectParams) error {
	if params.IceParameters == nil {
		return ErrMissingIceParameters
	}
	if len(params.DtlsParameters.Fingerprints) == 0 {
		return errors.New("peer dtls fingerprint required")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already connecting")
	}
	t.started = true
	t.mu.Unlock()

	if err := t.ice.SetRemoteCandidates(params.IceCandidates); err != nil {
		// Nothing has started yet, the client may retry.
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return fmt.Errorf("remote candidates: %w", err)
	}

	iceParams := *params.IceParameters
	go func() {
		role := webrtc.ICERoleControlled
		if err := t.ice.Start(nil, iceParams, &role); err != nil {
			t.logger.Error().Err(err).Msg("ice start")
			return
		}
		if t.ctx.Err() != nil {
			return
		}
		if err := t.dtls.Start(params.DtlsParameters); err != nil {
			t.logger.Error().Err(err).Msg("dtls start")
		}
	}()
	return nil
}

func (t *WebRtcTransport) onConnected() {
	t.mu.Lock()
	t.connected = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, c := range pending {
		c.start()
	}
}

func (t *WebRtcTransport) Consume(_ context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	p, err := t.router.producer(opts.ProducerID)
	if err != nil {
		return nil, err
	}
	codec := p.codec
	params := core.RtpCodecParameters{
		MimeType:     codec.MimeType,
		PayloadType:  codec.PreferredPayloadType,
		ClockRate:    codec.ClockRate,
		Channels:     codec.Channels,
		Parameters:   codec.Parameters,
		RtcpFeedback: codec.RtcpFeedback,
	}
	if !opts.RtpCapabilities.Supports(params) {
		return nil, fmt.Errorf("client cannot receive %s", codec.MimeType)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	mid := strconv.Itoa(t.nextMid)
	t.nextMid++
	t.mu.Unlock()

	c, err := newConsumer(t, p, params, mid, opts.Paused)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.consumers[c.id] = c
	connected := t.connected
	if !connected {
		t.pending = append(t.pending, c)
	}
	t.mu.Unlock()
	if connected {
		c.start()
	}
	return c, nil
}

func (t *WebRtcTransport) removeConsumer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
	for i, c := range t.pending {
		if c.id == id {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
}

func (t *WebRtcTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}
	err := t.closeStack()
	t.router.untrack(t.id)
	if err != nil {
		t.logger.Error().Err(err).Msg("close error")
	} else {
		t.logger.Info().Msg("closed")
	}
	return err
}

func (t *WebRtcTransport) closeStack() error {
	t.cancel()
	var errs []error
	if t.dtls != nil {
		errs = append(errs, t.dtls.Stop())
	}
	if t.ice != nil {
		errs = append(errs, t.ice.Stop())
	}
	errs = append(errs, t.gatherer.Close())
	return errors.Join(errs...)
}
