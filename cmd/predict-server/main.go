package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/remote"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/config"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/telemetry"
)

func main() {
	def := config.Default()
	flags := pflag.NewFlagSet("predict-server", pflag.ExitOnError)
	configFile := flags.String("config", "", "Fichier de configuration (yaml/json/toml)")
	flags.String("addr", def.Addr, "Adresse d'écoute de l'API locale (ex: 127.0.0.1:8080)")
	flags.String("db-path", def.DBPath, "Chemin SQLite des réglages")
	flags.String("server-url", def.ServerURL, "URL du service de prédiction distant")
	flags.String("log-level", def.LogLevel, "Niveau de log (trace, debug, info, warn, error)")
	flags.Bool("trace", def.Trace, "Exporter les spans otel sur stderr")
	_ = flags.Parse(os.Args[1:])

	v := config.New()
	if err := config.BindFlags(v, flags); err != nil {
		log.Fatal().Err(err).Msg("binding flags")
	}
	cfg, err := config.Load(v, *configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	logger := zerolog.New(os.Stdout).Level(cfg.Level()).With().Timestamp().Str("app", "predict-server").Logger()
	log.Logger = logger

	if err := run(logger, cfg); err != nil {
		logger.Fatal().Err(err).Msg("predict-server stopped")
	}
	logger.Info().Msg("bye")
}

func run(logger zerolog.Logger, cfg config.Config) error {
	logger.Info().Interface("build", buildinfo.Current()).Str("db", cfg.DBPath).Str("server_url", cfg.ServerURL).Msg("starting")

	shutdownTracing, err := telemetry.Init("predict-server", cfg.Trace, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	settingsSvc := app.NewSettingsService(sqlite.NewSettingsRepository(db.SQL))
	settings, err := settingsSvc.Get(ctx)
	if err != nil {
		return err
	}
	settings = cfg.Overlay(settings)

	session := app.NewSession(cfg.ClientID, buildinfo.UserAgent())
	client, err := remote.New(logger, session, remote.Options{
		BaseURL:         cfg.ServerURL,
		Timeout:         cfg.HTTPTimeout,
		SubmitRate:      cfg.SubmitRate,
		BreakerFailures: cfg.BreakerFailures,
	})
	if err != nil {
		return err
	}

	bus := memorybus.New()
	defer bus.Close()

	orch := app.NewOrchestrator(ctx, logger, session, client, bus, app.OptionsFromSettings(settings))
	defer orch.Reset()

	srv := httpapi.NewServer(logger, orch, app.NewQuotaGate(client), settingsSvc, bus, func(updated domain.Settings) {
		orch.SetOptions(app.OptionsFromSettings(updated))
		logger.Info().Interface("settings", updated).Msg("settings updated")
	}).WithLeaderboard(client)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("client_id", session.ClientID).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
