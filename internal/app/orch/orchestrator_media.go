package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog/log"
)

// ConsumerInfo describes a consumer to the client that owns it.
type ConsumerInfo struct {
	ID            string             `json:"id"`
	ProducerID    string             `json:"producerId"`
	Kind          domain.MediaKind   `json:"kind"`
	RtpParameters core.RtpParameters `json:"rtpParameters"`
}

// ConnectTransport completes DTLS (and ICE) on the session transport.
func (o *Orchestrator) ConnectTransport(ctx context.Context, s *Session, params core.ConnectParams) error {
	next, err := o.apply(s, ActionConnectTransport)
	if err != nil {
		return err
	}
	t := s.Transport()
	if err := t.Connect(ctx, params); err != nil {
		return domain.NewEngineError("connect transport", err)
	}
	o.commit(s, next)
	log.Info().Str("module", "orch").Str("sid", string(s.ID())).Str("transport", t.ID()).Msg("transport connected")
	return nil
}

// Consume waits for a producer in the session room and wires a consumer for
// it onto the session transport. The consumer is resumed before returning.
func (o *Orchestrator) Consume(ctx context.Context, s *Session, caps core.RtpCapabilities) (ConsumerInfo, error) {
	next, stateErr := o.apply(s, ActionConsume)
	if s.State() == StateClosed {
		return ConsumerInfo{}, stateErr
	}
	room, t := s.Room(), s.Transport()
	if room == nil {
		var err error
		if room, err = o.Rooms.GetOrCreate(ctx, o.DefaultRoom); err != nil {
			return ConsumerInfo{}, err
		}
	}

	// Discovery runs before the transport requirement is enforced, so an
	// early consume against an empty room still reports a missing producer.
	start := time.Now()
	producer, err := app.AwaitProducer(ctx, room, o.ConsumeKind, o.Discovery)
	o.Metrics.DiscoveryWait.WithLabelValues(discoveryOutcome(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return ConsumerInfo{}, err
	}
	if stateErr != nil {
		return ConsumerInfo{}, stateErr
	}

	c, err := t.Consume(ctx, core.ConsumeOptions{
		ProducerID:      producer.ID(),
		RtpCapabilities: caps,
		Paused:          true,
	})
	if err != nil {
		return ConsumerInfo{}, domain.NewEngineError("consume", err)
	}
	if c.Paused() {
		if err := c.Resume(ctx); err != nil {
			// The client never learns this consumer's id.
			if cerr := c.Close(); cerr != nil {
				log.Warn().Err(cerr).Str("module", "orch").Str("consumer", c.ID()).Msg("close consumer")
			}
			return ConsumerInfo{}, domain.NewEngineError("resume consumer", err)
		}
	}
	room.AddConsumer(c, t.ID())
	o.Metrics.Consumers.WithLabelValues(string(room.ID())).Inc()
	o.commit(s, next)

	log.Info().
		Str("module", "orch").
		Str("sid", string(s.ID())).
		Str("consumer", c.ID()).
		Str("producer", producer.ID()).
		Msg("consumer created")

	return ConsumerInfo{
		ID:            c.ID(),
		ProducerID:    c.ProducerID(),
		Kind:          c.Kind(),
		RtpParameters: c.RtpParameters(),
	}, nil
}

// ResumeConsumer resumes every paused consumer of the session transport.
// Having nothing to resume is not an error.
func (o *Orchestrator) ResumeConsumer(ctx context.Context, s *Session) error {
	next, err := o.apply(s, ActionResumeConsumer)
	if err != nil {
		return err
	}
	room, t := s.Room(), s.Transport()
	for _, c := range room.ConsumersOfTransport(t.ID()) {
		if !c.Paused() {
			continue
		}
		if err := c.Resume(ctx); err != nil {
			return domain.NewEngineError("resume consumer", err)
		}
	}
	o.commit(s, next)
	return nil
}

func discoveryOutcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, domain.ErrNoProducerAvailable):
		return "timeout"
	default:
		return "canceled"
	}
}
