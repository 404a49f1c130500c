package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/core/coretest"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codecs() []core.RtpCodecCapability {
	return []core.RtpCodecCapability{coretest.H264Capability()}
}

func TestGetOrCreateConcurrentCallersShareOneRouter(t *testing.T) {
	engine := coretest.NewEngine()
	engine.CreateDelay = 50 * time.Millisecond
	rooms := app.NewRoomManager(engine, codecs())

	const callers = 16
	got := make([]*core.Room, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := rooms.GetOrCreate(context.Background(), "r1")
			assert.NoError(t, err)
			got[i] = room
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, engine.RouterCount())
	for _, room := range got {
		require.NotNil(t, room)
		assert.Same(t, got[0], room)
		assert.Equal(t, got[0].Router().ID(), room.Router().ID())
	}
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	engine := coretest.NewEngine()
	rooms := app.NewRoomManager(engine, codecs())
	ctx := context.Background()

	a, err := rooms.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	again, err := rooms.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	b, err := rooms.GetOrCreate(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, engine.RouterCount())

	list := rooms.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoomID("a"), list[0].ID)
	assert.Equal(t, domain.RoomID("b"), list[1].ID)
}

func TestGetOrCreateEngineFailure(t *testing.T) {
	engine := coretest.NewEngine()
	engine.RouterErr = errors.New("worker died")
	rooms := app.NewRoomManager(engine, codecs())

	_, err := rooms.GetOrCreate(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineOperation)
	_, ok := rooms.Get("x")
	assert.False(t, ok, "failed creation must not install a room")

	// A later attempt is not poisoned by the earlier failure.
	engine.RouterErr = nil
	_, err = rooms.GetOrCreate(context.Background(), "x")
	require.NoError(t, err)
}

func TestGetOrCreateCallerCancelDoesNotAbortCreation(t *testing.T) {
	engine := coretest.NewEngine()
	engine.CreateDelay = 100 * time.Millisecond
	rooms := app.NewRoomManager(engine, codecs())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rooms.GetOrCreate(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	room, err := rooms.GetOrCreate(context.Background(), "slow")
	require.NoError(t, err)
	assert.NotNil(t, room)
	assert.Equal(t, 1, engine.RouterCount())
}
