package signal

import (
	"context"
	"testing"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/core/coretest"
	"github.com/dkeye/Stream/internal/core/mocks"
	"github.com/dkeye/Stream/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type dropPolicy struct{}

func (dropPolicy) OnBackPressure(core.SessionID) app.BackpressureAction { return app.DropMessage }

func newController(policy app.Policy) *SignalWSController {
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(coretest.NewEngine(), nil),
		Metrics:  metrics.New(nil),
		Policy:   policy,
	}
	return NewSignalWSController(o, nil, Options{})
}

func TestBackpressureClosesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockSignalConnection(ctrl)

	c := newController(app.SimplePolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	s := c.Orch.OpenSession("slow", cancel)

	conn.EXPECT().TrySend(gomock.Any()).Return(ErrBackpressure)
	conn.EXPECT().Close()

	c.handlePing(s, conn)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestBackpressureDropKeepsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockSignalConnection(ctrl)

	c := newController(dropPolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := c.Orch.OpenSession("slow", cancel)

	conn.EXPECT().TrySend(gomock.Any()).Return(ErrBackpressure)
	conn.EXPECT().Close().Times(0)

	c.handlePing(s, conn)
	assert.NoError(t, ctx.Err())
}

func TestRepliesAreFramedJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockSignalConnection(ctrl)
	c := newController(nil)
	s := c.Orch.OpenSession("s", func() {})

	var got core.Frame
	conn.EXPECT().TrySend(gomock.Any()).DoAndReturn(func(f core.Frame) error {
		got = f
		return nil
	})

	c.handleSignal(context.Background(), s, conn, []byte(`{"action":"join"}`))
	require.NotNil(t, got)
	assert.Contains(t, string(got), `"action":"transport-created"`)
}

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "session closed", clientMessage(context.Canceled))
	assert.Equal(t, "rate limited", clientMessage(ErrRateLimited))
}
