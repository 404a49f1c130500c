package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Stream/internal/adapters/http"
	"github.com/dkeye/Stream/internal/adapters/rtc"
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/config"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := rtc.NewEngine(cfg.Engine())
	o := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Rooms:       app.NewRoomManager(engine, cfg.Codecs()),
		Policy:      app.SimplePolicy{},
		Metrics:     m,
		Discovery:   cfg.DiscoveryOptions(),
		DefaultRoom: domain.RoomID(cfg.DefaultRoom),
		ConsumeKind: cfg.Ingest().Kind,
	}

	receiver, err := o.StartReceiver(ctx, o.DefaultRoom, cfg.Ingest())
	switch {
	case errors.Is(err, domain.ErrBindFailure):
		log.Error().Err(err).Int("rtp_port", cfg.RTP.Port).Msg("rtp receiver could not bind, serving signalling only")
	case err != nil:
		log.Error().Err(err).Msg("rtp receiver failed to start")
	default:
		go func() {
			if err := receiver.Wait(); err != nil {
				log.Error().Err(err).Str("module", "ingest").Msg("receiver stopped")
			}
		}()
	}

	r := router.SetupRouter(ctx, cfg, o, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Stream server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	o.Registry.CancelAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := o.StopReceivers(); err != nil {
		log.Error().Err(err).Msg("receiver shutdown")
	}
	if err := engine.Close(); err != nil {
		log.Error().Err(err).Msg("engine shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
