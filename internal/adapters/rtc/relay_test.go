package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (w *fakeWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.seqs = append(w.seqs, p.SequenceNumber)
	return nil
}

func (w *fakeWriter) written() []uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.seqs...)
}

func TestOutTrackStates(t *testing.T) {
	ot := NewOutTrack("c1", &fakeWriter{}, true)
	assert.Equal(t, TrackStateMuted, ot.GetState())

	ot.MarkOk()
	assert.Equal(t, TrackStateOk, ot.GetState())
	ot.MarkMuted()
	assert.Equal(t, TrackStateMuted, ot.GetState())

	ot.MarkDelete()
	ot.MarkOk()
	ot.MarkMuted()
	assert.Equal(t, TrackStateDelete, ot.GetState())
	assert.Equal(t, "delete", ot.GetState().String())
}

func TestRelayFansOut(t *testing.T) {
	r := NewRelay(context.Background(), zerolog.Nop())
	defer r.Stop()

	live, muted := &fakeWriter{}, &fakeWriter{}
	liveTrack := NewOutTrack("live", live, false)
	r.AddOutTrack(liveTrack)
	r.AddOutTrack(NewOutTrack("muted", muted, true))

	for seq := uint16(1); seq <= 3; seq++ {
		require.True(t, r.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}))
	}

	require.Eventually(t, func() bool { return len(live.written()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint16{1, 2, 3}, live.written())
	assert.Empty(t, muted.written())
	assert.EqualValues(t, 3, liveTrack.Written())
	assert.Equal(t, 2, r.OutTracks())
}

func TestRelayDropsFailingTrack(t *testing.T) {
	r := NewRelay(context.Background(), zerolog.Nop())
	defer r.Stop()

	broken := NewOutTrack("broken", &fakeWriter{err: errors.New("closed pipe")}, false)
	r.AddOutTrack(broken)
	r.Push(&rtp.Packet{})

	require.Eventually(t, func() bool { return r.OutTracks() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, TrackStateDelete, broken.GetState())
}

func TestRelayRemovesDeletedTrack(t *testing.T) {
	r := NewRelay(context.Background(), zerolog.Nop())
	defer r.Stop()

	ot := NewOutTrack("gone", &fakeWriter{}, false)
	r.AddOutTrack(ot)
	ot.MarkDelete()
	r.Push(&rtp.Packet{})

	require.Eventually(t, func() bool { return r.OutTracks() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRelayStopMarksTracks(t *testing.T) {
	r := NewRelay(context.Background(), zerolog.Nop())
	ot := NewOutTrack("c", &fakeWriter{}, false)
	r.AddOutTrack(ot)

	r.Stop()
	assert.Equal(t, TrackStateDelete, ot.GetState())
}
