package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	appcfg "github.com/jo-hoe/sermonforge/internal/config"
	"github.com/jo-hoe/sermonforge/internal/dispatch"
	"github.com/jo-hoe/sermonforge/internal/download"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/llm/gemini"
	"github.com/jo-hoe/sermonforge/internal/llm/logging"
	"github.com/jo-hoe/sermonforge/internal/llm/mock"
	"github.com/jo-hoe/sermonforge/internal/llm/ollama"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/remote"
	"github.com/jo-hoe/sermonforge/internal/stage"
	"github.com/jo-hoe/sermonforge/internal/store"
)

// app bundles the wired-up collaborators a command needs: the store, the
// Dispatcher, and enough of the config to report human-readable status.
type app struct {
	cfg   *appcfg.Config
	log   *slog.Logger
	store *store.SQLiteStore
	disp  *dispatch.Dispatcher
}

// buildApp loads config and wires every collaborator a CLI command might
// need. Callers must call app.store.Close() when done.
func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	st, err := store.Open(cfg.Server.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if n, err := st.ReclaimAbandoned(context.Background()); err != nil {
		logger.Warn("reclaim abandoned stages", "err", err)
	} else if n > 0 {
		logger.Info("reclaimed abandoned stages", "count", n)
	}

	primary := newLLMClient(cfg, cfg.LLM.Primary, logger, "primary")
	secondary := newLLMClient(cfg, cfg.LLM.Secondary, logger, "secondary")

	coordinator := remote.New(cfg.Remote)

	rootDir := cfg.Server.RootDir
	executors := map[model.StageName]stage.Executor{
		model.StageDownloadAudio:      stage.NewDownloadAudioExecutor(st, rootDir, download.YtDLP{}),
		model.StageExtractSegment:     stage.NewExtractSegmentExecutor(st, rootDir, download.FFmpeg{}),
		model.StageTranscribe:         stage.NewTranscribeExecutor(st, rootDir, coordinator),
		model.StageFormatParagraphs:   stage.NewFormatExecutor(st, rootDir, secondary),
		model.StageExtractMetadata:    stage.NewMetadataExecutor(st, rootDir, primary),
		model.StageEditParagraphs:     stage.NewEditExecutor(st, rootDir, primary),
		model.StageEvaluateParagraphs: stage.NewEvaluateExecutor(st, rootDir, primary),
		model.StageBuildChapter:       stage.NewChapterExecutor(st, rootDir, primary, secondary),
	}

	return &app{
		cfg:   cfg,
		log:   logger,
		store: st,
		disp:  dispatch.New(st, executors),
	}, nil
}

func newLLMClient(cfg *appcfg.Config, endpoint appcfg.LLMEndpointConfig, logger *slog.Logger, label string) llm.Client {
	if cfg.LLM.UseMock {
		return logging.Wrap(mock.New(cfg.LLM.Mock), logger, label)
	}
	var inner llm.Client
	switch endpoint.Provider {
	case "ollama":
		inner = ollama.New(endpoint, 0)
	default:
		inner = gemini.New(endpoint, 0)
	}
	return logging.Wrap(inner, logger, label)
}

// jobAgeString renders a timestamp as a compact human string, e.g. "3h ago".
func jobAgeString(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
