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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/groupcall/internal/adapters/http"
	"github.com/dkeye/groupcall/internal/adapters/rtc"
	sig "github.com/dkeye/groupcall/internal/adapters/signal"
	"github.com/dkeye/groupcall/internal/app"
	"github.com/dkeye/groupcall/internal/app/orch"
	"github.com/dkeye/groupcall/internal/config"
	"github.com/dkeye/groupcall/internal/core"
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
	zerolog.SetGlobalLevel(cfg.Level())

	fabric, err := rtc.NewFabric(rtc.Config{
		ICEServers:  cfg.ICEServers,
		PLIInterval: cfg.PLIInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create media fabric")
	}

	rooms := app.NewRoomRegistry(fabric)
	hub := sig.NewHub()
	o := &orch.Orchestrator{
		Registry:     app.NewRegistry(),
		Rooms:        rooms,
		Candidates:   core.NewCandidateBuffer(cfg.CandidateBufferLimit),
		Transport:    hub,
		Policy:       app.PolicyFromName(cfg.Backpressure),
		MediaTimeout: cfg.MediaTimeout,
	}

	ctrl := sig.NewSignalWSController(o, hub,
		sig.NewRoomRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
		sig.Options{
			ReadLimit:  cfg.ReadLimit,
			PongWait:   cfg.PongWait,
			PingPeriod: cfg.PingPeriod,
			WriteWait:  cfg.WriteWait,
			SendBuffer: cfg.SendBuffer,
		})

	r := router.SetupRouter(ctx, cfg, rooms, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("group call server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := rooms.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("room teardown incomplete")
	}
	log.Info().Msg("Server exited gracefully")
}
