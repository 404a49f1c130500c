package core

import (
	"sync"

	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog/log"
)

// ProducerEntry is the single record both producer indexes point to.
type ProducerEntry struct {
	Producer Producer
	SSRC     domain.SSRC
}

// ConsumerEntry remembers which transport owns the consumer.
type ConsumerEntry struct {
	Consumer    Consumer
	TransportID string
}

// Room is a threadsafe in-memory room bound to one router for its whole life.
// It never closes engine objects on its own.
type Room struct {
	id     domain.RoomID
	router Router

	mu              sync.RWMutex
	transports      map[string]Transport
	producersByID   map[string]*ProducerEntry
	producersBySSRC map[domain.SSRC]*ProducerEntry
	consumers       map[string]*ConsumerEntry

	// producerAdded is closed and replaced every time a producer is indexed.
	producerAdded chan struct{}
}

func NewRoom(id domain.RoomID, router Router) *Room {
	return &Room{
		id:              id,
		router:          router,
		transports:      make(map[string]Transport),
		producersByID:   make(map[string]*ProducerEntry),
		producersBySSRC: make(map[domain.SSRC]*ProducerEntry),
		consumers:       make(map[string]*ConsumerEntry),
		producerAdded:   make(chan struct{}),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Router() Router { return r.router }

func (r *Room) RtpCapabilities() RtpCapabilities { return r.router.RtpCapabilities() }

func (r *Room) AddTransport(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.ID()] = t
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("transport", t.ID()).Msg("transport added")
}

func (r *Room) RemoveTransport(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("transport", id).Msg("transport removed")
}

func (r *Room) Transport(id string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[id]
	return t, ok
}

// AddProducer indexes p under its engine id and under ssrc, then wakes
// everybody waiting for a producer.
func (r *Room) AddProducer(p Producer, ssrc domain.SSRC) *ProducerEntry {
	entry := &ProducerEntry{Producer: p, SSRC: ssrc}
	r.mu.Lock()
	r.producersByID[p.ID()] = entry
	r.producersBySSRC[ssrc] = entry
	close(r.producerAdded)
	r.producerAdded = make(chan struct{})
	r.mu.Unlock()

	log.Info().
		Str("module", "core.room").
		Str("room", string(r.id)).
		Str("producer", p.ID()).
		Str("ssrc", ssrc.String()).
		Str("kind", string(p.Kind())).
		Msg("producer added")
	return entry
}

func (r *Room) ProducerByID(id string) (*ProducerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.producersByID[id]
	return e, ok
}

func (r *Room) ProducerBySSRC(ssrc domain.SSRC) (*ProducerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.producersBySSRC[ssrc]
	return e, ok
}

// FindProducer returns any unclosed producer of kind.
func (r *Room) FindProducer(kind domain.MediaKind) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.producersByID {
		if e.Producer.Kind() == kind && !e.Producer.Closed() {
			return e.Producer, true
		}
	}
	return nil, false
}

// ProducerAdded returns a channel closed on the next AddProducer call.
func (r *Room) ProducerAdded() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.producerAdded
}

func (r *Room) AddConsumer(c Consumer, transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[c.ID()] = &ConsumerEntry{Consumer: c, TransportID: transportID}
	log.Info().
		Str("module", "core.room").
		Str("room", string(r.id)).
		Str("consumer", c.ID()).
		Str("producer", c.ProducerID()).
		Str("transport", transportID).
		Msg("consumer added")
}

func (r *Room) RemoveConsumer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consumers, id)
}

// ConsumersOfTransport returns the consumers owned by transportID.
func (r *Room) ConsumersOfTransport(transportID string) []Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Consumer, 0, 1)
	for _, e := range r.consumers {
		if e.TransportID == transportID {
			out = append(out, e.Consumer)
		}
	}
	return out
}

func (r *Room) Info() domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.RoomInfo{
		ID:         r.id,
		RouterID:   r.router.ID(),
		Transports: len(r.transports),
		Producers:  len(r.producersByID),
		Consumers:  len(r.consumers),
	}
}
