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

	router "github.com/openagora/agora/internal/adapters/http"
	"github.com/openagora/agora/internal/app"
	"github.com/openagora/agora/internal/config"
	"github.com/openagora/agora/internal/core"
	"github.com/openagora/agora/internal/store/memory"
	"github.com/openagora/agora/internal/store/postgres"
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

	var store core.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres store")
		}
		defer pg.Close()
		store = pg
		log.Info().Str("module", "main").Msg("using postgres store")
	} else {
		store = memory.New()
		log.Info().Str("module", "main").Msg("using in-memory store")
	}

	orch := app.NewOrchestrator(store)
	if cfg.AdmissionRecheck > 0 {
		orch.AdmissionRecheck = cfg.AdmissionRecheck
	}

	r := router.SetupRouter(cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Agora server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
