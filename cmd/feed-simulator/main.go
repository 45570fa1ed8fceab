// The feed-simulator stands in for the sensing backend during development and
// testing: it generates synthetic detection events, journals them, and serves
// the snapshot, detail, heatmap and stream endpoints the viewer consumes.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudorandom/threat-map/pkg/config"
	"github.com/sudorandom/threat-map/pkg/logging"
)

var (
	configFlag = flag.String("config", "config.yaml", "Path to the YAML config file")
	addrFlag   = flag.String("addr", "", "Listen address (overrides config)")
	rateFlag   = flag.Float64("rate", 0, "Events per minute (overrides config)")
	seedFlag   = flag.Int64("seed", 0, "Generator seed, 0 for time-based (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		boot := logging.Init("info", "console")
		boot.Fatal().Err(err).Msg("loading config")
	}
	if *addrFlag != "" {
		cfg.Simulator.Addr = *addrFlag
	}
	if *rateFlag > 0 {
		cfg.Simulator.Rate = *rateFlag
	}
	if *seedFlag != 0 {
		cfg.Simulator.Seed = *seedFlag
	}

	logger := logging.Init(cfg.Log.Level, cfg.Log.Format)

	journal, err := OpenJournal(cfg.Simulator.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Simulator.DataDir).Msg("opening journal")
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing journal")
		}
	}()

	server := NewServer(logger, journal)
	if err := server.Replay(); err != nil {
		logger.Fatal().Err(err).Msg("replaying journal")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go generate(ctx, server, cfg.Simulator, logger)

	httpServer := &http.Server{
		Addr:              cfg.Simulator.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Simulator.Addr).Float64("rate", cfg.Simulator.Rate).Msg("feed simulator listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

// generate emits synthetic events at the configured per-minute rate until the
// context is cancelled.
func generate(ctx context.Context, server *Server, cfg config.SimulatorConfig, logger zerolog.Logger) {
	gen := NewGenerator(cfg.Seed)
	interval := time.Duration(float64(time.Minute) / cfg.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			raw, err := gen.Next(now)
			if err != nil {
				logger.Warn().Err(err).Msg("generating event")
				continue
			}
			if _, err := server.Ingest(raw); err != nil {
				logger.Warn().Err(err).Msg("ingesting generated event")
			}
		}
	}
}
