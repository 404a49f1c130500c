package rtc

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

const relayQueue = 512

// Relay fans the packets of one producer out to its consumers' out-tracks.
type Relay struct {
	in chan *rtp.Packet

	mu        sync.RWMutex
	outTracks map[string]*OutTrack

	logger  zerolog.Logger
	sampled zerolog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRelay(ctx context.Context, logger zerolog.Logger) *Relay {
	ctx, cancel := context.WithCancel(ctx)
	r := &Relay{
		in:        make(chan *rtp.Packet, relayQueue),
		outTracks: make(map[string]*OutTrack),
		logger:    logger,
		sampled:   logger.Sample(&zerolog.BasicSampler{N: 100}),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go r.loop(ctx)
	return r
}

// Push queues pkt for fan-out. It never blocks; a full queue drops the packet.
func (r *Relay) Push(pkt *rtp.Packet) bool {
	select {
	case r.in <- pkt:
		return true
	default:
		r.sampled.Warn().Uint16("seq", pkt.SequenceNumber).Msg("relay queue full, dropping packet")
		return false
	}
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		case pkt := <-r.in:
			r.forward(pkt)
		}
	}
}

func (r *Relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := make(map[string]*OutTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, id)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Write(pkt); err != nil {
				r.logger.Error().
					Err(err).
					Str("consumer", id).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, id)
			}
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		delete(r.outTracks, id)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[ot.ConsumerID] = ot
}

// OutTracks returns the number of out-tracks still attached.
func (r *Relay) OutTracks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}

// Stop ends the loop and waits for it.
func (r *Relay) Stop() {
	r.cancel()
	<-r.done
}
