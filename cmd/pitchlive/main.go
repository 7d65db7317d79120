package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/internal/config"
	"github.com/koscakluka/pitchlive/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logFile, err := tea.LogToFile("pitchlive.log", "")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	devices, err := openAudio(cfg.AudioBackend)
	if err != nil {
		return err
	}
	defer devices.Close()

	var sessions session.Starter
	var scorer scoring.Scorer
	if cfg.BackendURL != "" {
		sessions = session.NewClient(cfg.BackendURL)
		scorer = scoring.NewClient(cfg.BackendURL)
	} else {
		var issuer session.CredentialIssuer
		if cfg.AvatarAPIKey != "" {
			issuer = avatar.NewSessionIssuer(cfg.AvatarAPIKey, avatar.WithSessionURL(cfg.AvatarSessionURL))
		}
		sessions = session.NewLocal(stages.Default, cfg.AgentIDs, issuer)

		seed := cfg.ScoringSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		scorer = scoring.NewKeywordScorer(rand.New(rand.NewSource(seed)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &app{
		cfg:      cfg,
		run:      stages.NewRun(stages.Default),
		sessions: sessions,
		scorer:   scorer,
		devices:  devices,
		surfaces: avatar.NewSurfaces(),
	}
	program := tea.NewProgram(newModel(ctx, app), tea.WithAltScreen())
	app.send = program.Send
	app.surfaces.Register(renderTarget, terminalSurface{send: program.Send})

	_, err = program.Run()
	return err
}
