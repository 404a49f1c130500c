package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := app.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	reg.Bind("s1", "init", cancel)
	time.Sleep(time.Millisecond)
	reg.Bind("s2", "init", nil)
	require.Equal(t, 2, reg.Count())

	assert.True(t, reg.UpdateRoom("s1", "lobby"))
	assert.True(t, reg.UpdateState("s1", "joined"))
	assert.False(t, reg.UpdateState("missing", "joined"))

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, core.SessionID("s1"), snap[0].ID)
	assert.Equal(t, "joined", snap[0].State)
	assert.EqualValues(t, "lobby", snap[0].RoomID)

	assert.True(t, reg.Cancel("s1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, reg.Cancel("missing"))

	reg.Unbind("s1")
	reg.Unbind("s2")
	assert.Zero(t, reg.Count())
}

func TestRegistryCancelAll(t *testing.T) {
	reg := app.NewRegistry()
	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	reg.Bind("a", "init", cancelA)
	reg.Bind("b", "init", cancelB)

	reg.CancelAll()

	assert.Error(t, ctxA.Err())
	assert.Error(t, ctxB.Err())
}

func TestSimplePolicyClosesSlowSessions(t *testing.T) {
	assert.Equal(t, app.CloseSession, app.SimplePolicy{}.OnBackPressure("any"))
}
