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
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/fakeremote"
)

func main() {
	def := fakeremote.DefaultOptions()
	addr := pflag.String("addr", "127.0.0.1:8000", "Adresse d'écoute")
	tick := pflag.Duration("tick", 500*time.Millisecond, "Intervalle d'avancement des jobs")
	steps := pflag.Int("steps", def.Steps, "Ticks passés en running avant achèvement")
	capacity := pflag.Int("capacity", def.Capacity, "Jobs simultanés avant queue_full")
	perDay := pflag.Int("requests-per-day", def.RequestsPerDay, "Unités autorisées par client (council = 3)")
	maxConcurrent := pflag.Int("max-concurrent", def.MaxConcurrentPerClient, "Jobs actifs par client avant request_in_progress")
	budget := pflag.Float64("daily-budget", def.DailyBudget, "Budget journalier en USD avant budget_exceeded")
	agentCost := pflag.Float64("agent-cost", def.AgentCost, "Coût simulé d'un passage d'agent")
	agents := pflag.IntSlice("agents", def.Agents, "miner_uid du classement, par rang")
	debug := pflag.Bool("debug", false, "Logs debug")
	pflag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("app", "predict-fake").Logger()

	fake := fakeremote.New(logger, fakeremote.Options{
		Capacity:               *capacity,
		RequestsPerDay:         *perDay,
		MaxConcurrentPerClient: *maxConcurrent,
		DailyBudget:            *budget,
		AgentCost:              *agentCost,
		Steps:                  *steps,
		Agents:                 *agents,
	})
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           fake.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fake.Run(gctx, *tick)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", *addr).Msg("fake remote listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("fake remote crashed")
	}
}
