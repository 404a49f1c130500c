package orch_test

import (
	"net"
	"testing"

	"github.com/dkeye/Stream/internal/app/ingest"
	"github.com/stretchr/testify/require"
)

func ingestConfig(t *testing.T) ingest.Config {
	t.Helper()
	cfg := ingest.DefaultConfig()
	cfg.ListenIP = "127.0.0.1"
	for range 50 {
		a, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		port := a.LocalAddr().(*net.UDPAddr).Port
		b, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
		_ = a.Close()
		if err == nil {
			_ = b.Close()
			cfg.Port = port
			return cfg
		}
	}
	t.Fatal("no free port pair")
	return cfg
}
