package orch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dkeye/Stream/internal/app/ingest"
	"github.com/dkeye/Stream/internal/domain"
)

var ErrReceiverRunning = errors.New("receiver already running")

// StartReceiver starts RTP ingestion into roomID. A room has at most one receiver.
func (o *Orchestrator) StartReceiver(ctx context.Context, roomID domain.RoomID, cfg ingest.Config) (*ingest.Receiver, error) {
	o.init()
	if roomID == "" {
		roomID = o.DefaultRoom
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.receivers[roomID]; ok {
		return nil, fmt.Errorf("%w: room %s", ErrReceiverRunning, roomID)
	}

	room, err := o.Rooms.GetOrCreate(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r, err := ingest.Start(ctx, room, cfg, o.Metrics)
	if err != nil {
		return nil, err
	}
	o.receivers[roomID] = r
	return r, nil
}

func (o *Orchestrator) Receiver(roomID domain.RoomID) (*ingest.Receiver, bool) {
	o.init()
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.receivers[roomID]
	return r, ok
}

// ReceiverStats returns the counters of every running receiver keyed by room.
func (o *Orchestrator) ReceiverStats() map[domain.RoomID]ingest.Stats {
	o.init()
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[domain.RoomID]ingest.Stats, len(o.receivers))
	for id, r := range o.receivers {
		out[id] = r.Stats()
	}
	return out
}

// StopReceivers closes every receiver, used on shutdown.
func (o *Orchestrator) StopReceivers() error {
	o.init()
	o.mu.Lock()
	ids := make([]domain.RoomID, 0, len(o.receivers))
	for id := range o.receivers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	receivers := make([]*ingest.Receiver, 0, len(ids))
	for _, id := range ids {
		receivers = append(receivers, o.receivers[id])
	}
	clear(o.receivers)
	o.mu.Unlock()

	var errs []error
	for _, r := range receivers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
