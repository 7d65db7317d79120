package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/internal/config"
	"github.com/koscakluka/pitchlive/internal/runledger"
	"github.com/koscakluka/pitchlive/internal/server"
	"github.com/koscakluka/pitchlive/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ledger runledger.Store = runledger.NewMemoryStore()
	if cfg.RedisURL != "" {
		rdb, err := runledger.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		ledger = runledger.NewRedisStore(rdb, runledger.DefaultTTL)
		slog.Info("run ledger on redis")
	}

	var issuer session.CredentialIssuer
	if cfg.AvatarAPIKey != "" {
		issuer = avatar.NewSessionIssuer(cfg.AvatarAPIKey, avatar.WithSessionURL(cfg.AvatarSessionURL))
	}

	seed := cfg.ScoringSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	router := server.NewRouter(server.Deps{
		Catalog:  stages.Default,
		Sessions: session.NewLocal(stages.Default, cfg.AgentIDs, issuer),
		Scorer:   scoring.NewKeywordScorer(rand.New(rand.NewSource(seed))),
		Ledger:   ledger,
	})

	srv := &http.Server{
		Addr:              cfg.PitchdAddr,
		Handler:           otelhttp.NewHandler(router, "pitchd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("pitchd listening", "addr", cfg.PitchdAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
