package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/polyscribe/internal/config"
	"github.com/rewired-gh/polyscribe/internal/llm"
	"github.com/rewired-gh/polyscribe/internal/logger"
	"github.com/rewired-gh/polyscribe/internal/monitor"
	"github.com/rewired-gh/polyscribe/internal/parser"
	"github.com/rewired-gh/polyscribe/internal/pipeline"
	"github.com/rewired-gh/polyscribe/internal/reader"
	"github.com/rewired-gh/polyscribe/internal/storage"
	"github.com/rewired-gh/polyscribe/internal/telegram"
)

var errStagesFailed = errors.New("one or more stages failed")

func runPipeline(cmd *cobra.Command, args []string) error {
	// Load API keys before the config so environment bindings see them
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if geminiKey != "" {
		cfg.Model.APIKey = geminiKey
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.WithField("config", configPath).Debug("Configuration loaded")

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.New(cfg.Storage, log)
	store.CleanupTemp()

	deps := pipeline.Deps{
		Fetcher:   reader.NewClient(cfg.Reader, log),
		Store:     store,
		Monitor:   monitor.New(cfg.Monitor.MinChange, cfg.Monitor.TopK, log),
		Log:       log,
		TargetURL: cfg.Reader.TargetURL,
		SkipPing:  cfg.Reader.SkipPing,
	}

	// The model is only needed by stage 2; without a key that stage fails
	// on its own and the other stages still run
	if slices.Contains(stages, 2) {
		if err := cfg.RequireModelKey(); err != nil {
			log.WithError(err).Error("Gemini client not initialized")
		} else {
			model, err := llm.NewGeminiCompleter(ctx, llm.GeminiOptions{
				APIKey:  cfg.Model.APIKey,
				Model:   cfg.Model.Name,
				Timeout: cfg.Model.Timeout,
			}, log)
			if err != nil {
				log.WithError(err).Error("Gemini client not initialized")
			} else {
				deps.Parser = parser.New(model, parser.Options{
					Chunks:        cfg.Parser.Chunks,
					MaxChunkChars: cfg.Parser.MaxChunkChars,
				}, log)
			}
		}
	}

	if cfg.Storage.S3.Bucket != "" {
		sink, err := storage.NewS3Sink(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Warn("Snapshot mirror disabled")
		} else {
			deps.Sink = sink
			deps.SinkPrefix = cfg.Storage.S3.Prefix
			log.WithField("bucket", cfg.Storage.S3.Bucket).Info("Snapshot mirror enabled")
		}
	}

	if cfg.Telegram.Enabled {
		tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			log.WithError(err).Warn("Telegram notifications disabled")
		} else {
			deps.Notifier = tg
			log.Info("Telegram client initialized successfully")
		}
	} else {
		log.Debug("Telegram notifications disabled")
	}

	report := pipeline.New(deps).Run(ctx, stages)
	printSummary(cmd.OutOrStdout(), report)

	if !report.Succeeded() {
		return errStagesFailed
	}
	return nil
}
