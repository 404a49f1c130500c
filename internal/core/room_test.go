package core_test

import (
	"context"
	"testing"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/core/coretest"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(t *testing.T) (*core.Room, *coretest.Router) {
	t.Helper()
	router, err := coretest.NewEngine().CreateRouter(context.Background(), []core.RtpCodecCapability{coretest.H264Capability()})
	require.NoError(t, err)
	return core.NewRoom(domain.DefaultRoom, router), router.(*coretest.Router)
}

func TestRoomIndexesProducerUnderBothKeys(t *testing.T) {
	room, _ := newRoom(t)
	p := coretest.NewProducer("p1", domain.KindVideo, coretest.H264Parameters(0x12345678))

	entry := room.AddProducer(p, 0x12345678)

	byID, ok := room.ProducerByID("p1")
	require.True(t, ok)
	bySSRC, ok := room.ProducerBySSRC(0x12345678)
	require.True(t, ok)
	assert.Same(t, entry, byID)
	assert.Same(t, entry, bySSRC)
	assert.Equal(t, 1, room.Info().Producers)
}

func TestRoomFindProducerSkipsClosedAndOtherKinds(t *testing.T) {
	room, _ := newRoom(t)
	audio := coretest.NewProducer("a", domain.KindAudio, core.RtpParameters{})
	closed := coretest.NewProducer("c", domain.KindVideo, coretest.H264Parameters(2))
	require.NoError(t, closed.Close())
	room.AddProducer(audio, 1)
	room.AddProducer(closed, 2)

	_, ok := room.FindProducer(domain.KindVideo)
	assert.False(t, ok)

	live := coretest.NewProducer("v", domain.KindVideo, coretest.H264Parameters(3))
	room.AddProducer(live, 3)
	got, ok := room.FindProducer(domain.KindVideo)
	require.True(t, ok)
	assert.Equal(t, "v", got.ID())
}

func TestRoomProducerAddedFires(t *testing.T) {
	room, _ := newRoom(t)
	added := room.ProducerAdded()

	select {
	case <-added:
		t.Fatal("notification fired before any producer was added")
	default:
	}

	room.AddProducer(coretest.NewProducer("p", domain.KindVideo, core.RtpParameters{}), 7)

	select {
	case <-added:
	default:
		t.Fatal("notification did not fire")
	}
	assert.NotEqual(t, added, room.ProducerAdded(), "channel must be replaced after firing")
}

func TestRoomConsumersOfTransport(t *testing.T) {
	room, router := newRoom(t)
	p := coretest.NewProducer("p", domain.KindVideo, coretest.H264Parameters(9))
	router.Seed(p)
	caps := core.RtpCapabilities{Codecs: []core.RtpCodecCapability{coretest.H264Capability()}}

	ctx := context.Background()
	t1, err := router.CreateWebRtcTransport(ctx)
	require.NoError(t, err)
	t2, err := router.CreateWebRtcTransport(ctx)
	require.NoError(t, err)
	room.AddTransport(t1)
	room.AddTransport(t2)

	c1, err := t1.Consume(ctx, core.ConsumeOptions{ProducerID: "p", RtpCapabilities: caps, Paused: true})
	require.NoError(t, err)
	c2, err := t2.Consume(ctx, core.ConsumeOptions{ProducerID: "p", RtpCapabilities: caps, Paused: true})
	require.NoError(t, err)
	room.AddConsumer(c1, t1.ID())
	room.AddConsumer(c2, t2.ID())

	owned := room.ConsumersOfTransport(t1.ID())
	require.Len(t, owned, 1)
	assert.Equal(t, c1.ID(), owned[0].ID())

	room.RemoveConsumer(c1.ID())
	assert.Empty(t, room.ConsumersOfTransport(t1.ID()))

	room.RemoveTransport(t1.ID())
	_, ok := room.Transport(t1.ID())
	assert.False(t, ok)
	assert.Equal(t, domain.RoomInfo{
		ID:         domain.DefaultRoom,
		RouterID:   router.ID(),
		Transports: 1,
		Producers:  0,
		Consumers:  1,
	}, room.Info())
}
