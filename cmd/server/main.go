package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cardpilot/cardpilot/internal/api"
	"github.com/cardpilot/cardpilot/internal/config"
	"github.com/cardpilot/cardpilot/internal/core"
	"github.com/cardpilot/cardpilot/internal/gen"
	"github.com/cardpilot/cardpilot/internal/store"
	"github.com/cardpilot/cardpilot/internal/worker"
)

func main() {
	flags := pflag.NewFlagSet("cardpilot", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	flags.String("port", "8080", "HTTP listen port")
	flags.String("db-path", "cardpilot.db", "path to SQLite database file")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("open db", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		slog.Error("init store", "err", err)
		os.Exit(1)
	}

	// Build collaborators.
	var candidates gen.CandidateGenerator
	var artwork gen.ArtworkGenerator

	if cfg.UseStubs() {
		slog.Info("OPENAI_API_KEY not set, using stub collaborators")
		candidates = &gen.StubCandidateGenerator{}
		artwork = &gen.StubArtworkGenerator{}
	} else {
		slog.Info("using OpenAI collaborators", "model", cfg.OpenAIModel)
		candidates = gen.NewOpenAIClient(cfg.OpenAIKey,
			gen.WithModel(cfg.OpenAIModel),
			gen.WithBaseURL(cfg.OpenAIBaseURL),
			gen.WithHTTPTimeout(cfg.HTTPTimeout),
		)
		artwork = &gen.TieredArtwork{
			Local: gen.NewLocalArtworkClient(cfg.LocalArtworkURL),
			Remote: gen.NewRemoteArtworkClient(cfg.OpenAIKey,
				gen.WithArtworkModel(cfg.ImageModel),
				gen.WithArtworkBaseURL(cfg.OpenAIBaseURL),
			),
		}
	}

	guard := &core.Guard{}
	svc := core.New(st, guard)

	// Start background workers.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	maintainer := worker.NewMaintainer(st, candidates, svc, guard, cfg.MaintainerInterval, cfg.BatchDelay)
	go maintainer.Start(ctx)

	enricher := worker.NewEnricher(st, artwork, svc, cfg.EnricherInterval)
	go enricher.Start(ctx)

	// Start API server.
	srv := api.New(svc, st, cfg.CORSOrigin)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		cancel()
		httpServer.Shutdown(context.Background())
	}()

	fmt.Printf("cardpilot server listening on http://localhost:%s\n", cfg.Port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
