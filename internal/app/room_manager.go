package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RoomManager is the room registry. Rooms are created lazily with a router
// negotiated from a fixed codec list and are never torn down.
type RoomManager struct {
	engine core.Engine
	codecs []core.RtpCodecCapability

	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room

	// creating collapses concurrent first-time creations of one id into a
	// single CreateRouter call.
	creating singleflight.Group
}

// NewRoomManager builds rooms on engine, negotiating every router with codecs.
func NewRoomManager(engine core.Engine, codecs []core.RtpCodecCapability) *RoomManager {
	return &RoomManager{
		engine: engine,
		codecs: codecs,
		rooms:  make(map[domain.RoomID]*core.Room),
	}
}

// Get returns an existing room without creating it.
func (m *RoomManager) Get(id domain.RoomID) (*core.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// GetOrCreate returns the room for id, creating it on first reference.
// Callers never observe two routers for the same id.
func (m *RoomManager) GetOrCreate(ctx context.Context, id domain.RoomID) (*core.Room, error) {
	if room, ok := m.Get(id); ok {
		return room, nil
	}

	// The flight outlives any single caller, so it must not inherit one caller's cancellation.
	createCtx := context.WithoutCancel(ctx)
	ch := m.creating.DoChan(string(id), func() (any, error) {
		if room, ok := m.Get(id); ok {
			return room, nil
		}
		router, err := m.engine.CreateRouter(createCtx, m.codecs)
		if err != nil {
			return nil, domain.NewEngineError("create router", err)
		}
		room := core.NewRoom(id, router)

		m.mu.Lock()
		m.rooms[id] = room
		m.mu.Unlock()

		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("router", router.ID()).Msg("room created")
		return room, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*core.Room), nil
	}
}

// List describes every room, sorted by id.
func (m *RoomManager) List() []domain.RoomInfo {
	m.mu.RLock()
	out := make([]domain.RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
