package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RTPPackets.WithLabelValues("default").Add(3)
	m.Sessions.Inc()

	assert.InDelta(t, 3, testutil.ToFloat64(m.RTPPackets.WithLabelValues("default")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Sessions), 0)

	n, err := testutil.GatherAndCount(reg, "stream_ingest_rtp_packets_total", "stream_signal_sessions")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrivateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
