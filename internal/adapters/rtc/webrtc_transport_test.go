package rtc

import (
	"context"
	"testing"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebRtc(t *testing.T, r *Router) *WebRtcTransport {
	t.Helper()
	wt, err := r.CreateWebRtcTransport(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = wt.Close() })
	return wt.(*WebRtcTransport)
}

func peerParams() core.ConnectParams {
	return core.ConnectParams{
		DtlsParameters: webrtc.DTLSParameters{
			Role:         webrtc.DTLSRoleClient,
			Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
		},
		IceParameters: &webrtc.ICEParameters{UsernameFragment: "peer", Password: "peer-password-0123456789"},
	}
}

func TestConnectRetryAfterBadCandidates(t *testing.T) {
	wt := newWebRtc(t, newRouter(t))

	bad := peerParams()
	bad.IceCandidates = []webrtc.ICECandidate{{
		Foundation: "1",
		Priority:   1,
		Address:    "not-an-ip",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       5000,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	}}
	require.Error(t, wt.Connect(context.Background(), bad))

	require.NoError(t, wt.Connect(context.Background(), peerParams()))
	assert.Error(t, wt.Connect(context.Background(), peerParams()), "second start is rejected")
}

func TestConnectRequiresPeerParameters(t *testing.T) {
	wt := newWebRtc(t, newRouter(t))

	noIce := peerParams()
	noIce.IceParameters = nil
	assert.ErrorIs(t, wt.Connect(context.Background(), noIce), ErrMissingIceParameters)

	noFingerprint := peerParams()
	noFingerprint.DtlsParameters.Fingerprints = nil
	assert.Error(t, wt.Connect(context.Background(), noFingerprint))
}

func TestConsumerMidsAreNotReused(t *testing.T) {
	r := newRouter(t)
	ingest, err := r.CreateIngestTransport(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ingest.Close() })
	p, err := ingest.Produce(context.Background(), core.ProduceOptions{Kind: domain.KindVideo, RtpParameters: h264Params(0x0102)})
	require.NoError(t, err)

	wt := newWebRtc(t, r)
	consume := func() core.Consumer {
		c, err := wt.Consume(context.Background(), core.ConsumeOptions{
			ProducerID:      p.ID(),
			RtpCapabilities: core.RtpCapabilities{Codecs: []core.RtpCodecCapability{h264()}},
			Paused:          true,
		})
		require.NoError(t, err)
		return c
	}

	first, second := consume(), consume()
	_ = first.Close()
	third := consume()

	assert.Equal(t, "1", second.RtpParameters().Mid)
	assert.Equal(t, "2", third.RtpParameters().Mid)
	assert.NotEqual(t, first.RtpParameters().Mid, third.RtpParameters().Mid)
}
