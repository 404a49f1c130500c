package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type Router struct {
	id         string
	api        *webrtc.API
	caps       core.RtpCapabilities
	iceServers []webrtc.ICEServer
	logger     zerolog.Logger

	mu         sync.RWMutex
	producers  map[string]*Producer
	transports map[string]core.Transport
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() core.RtpCapabilities { return r.caps }

func (r *Router) CreateIngestTransport(ctx context.Context) (core.IngestTransport, error) {
	t, err := newIngestTransport(ctx, r)
	if err != nil {
		return nil, err
	}
	r.track(t)
	return t, nil
}

func (r *Router) CreateWebRtcTransport(ctx context.Context) (core.WebRtcTransport, error) {
	t, err := newWebRtcTransport(ctx, r)
	if err != nil {
		return nil, err
	}
	r.track(t)
	return t, nil
}

func (r *Router) track(t core.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.ID()] = t
}

func (r *Router) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *Router) producer(id string) (*Producer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	if !ok || p.Closed() {
		return nil, fmt.Errorf("producer %s not found", id)
	}
	return p, nil
}

func (r *Router) close() error {
	r.mu.RLock()
	transports := make([]core.Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.RUnlock()

	var errs []error
	for _, t := range transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
