package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/meet/internal/adapters/http"
	"github.com/dkeye/meet/internal/adapters/rtc"
	gateway "github.com/dkeye/meet/internal/adapters/signal"
	"github.com/dkeye/meet/internal/app"
	"github.com/dkeye/meet/internal/app/orch"
	"github.com/dkeye/meet/internal/config"
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/history"
	"github.com/dkeye/meet/internal/stats"
)

func setupLogger(cfg *config.Config) {
	if cfg.Mode != "release" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

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
	setupLogger(cfg)

	action, err := app.ParseBackpressureAction(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure setting")
	}
	webrtcCfg, err := rtc.NewWebRTCConfig(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("bad ice_servers setting")
	}

	visits, err := history.Open(cfg.HistoryDB, cfg.HistoryTTL, 256)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer visits.Close()

	o := &orch.Orchestrator{
		Rooms:    core.NewRegistry(cfg.HistoryLimit, nil),
		Sessions: app.NewRegistry(),
		History:  visits,
	}
	loop := orch.NewLoop(o, 1024)
	limiter := gateway.NewConnectLimiter(cfg.ConnectLimit, cfg.ConnectInterval)
	ctl := gateway.NewController(loop, gateway.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
		Policy:         app.SimplePolicy{Action: action},
		Limiter:        limiter,
	})
	o.Out = ctl

	go loop.Run(ctx)
	historyDone := make(chan struct{})
	go func() {
		defer close(historyDone)
		visits.Run(ctx)
	}()
	go func() {
		var pruners []stats.Pruner
		if limiter != nil {
			pruners = append(pruners, limiter)
		}
		if err := stats.NewReporter(loop, pruners...).Run(ctx, cfg.StatsSchedule); err != nil {
			log.Error().Err(err).Str("schedule", cfg.StatsSchedule).Msg("stats job disabled")
		}
	}()

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Loop:    loop,
		Signal:  ctl,
		History: visits,
		WebRTC:  webrtcCfg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	<-loop.Done()
	<-historyDone
	log.Info().Msg("Server exited gracefully")
}
