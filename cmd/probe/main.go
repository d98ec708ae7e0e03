package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anomalyscope/anomalyscope-go/internal/config"
	"github.com/anomalyscope/anomalyscope-go/internal/drift"
	"github.com/anomalyscope/anomalyscope-go/internal/logging"
	"github.com/anomalyscope/anomalyscope-go/internal/notification"
	"github.com/anomalyscope/anomalyscope-go/internal/provider"
	"github.com/anomalyscope/anomalyscope-go/internal/report"
	"github.com/anomalyscope/anomalyscope-go/internal/storage"
	"github.com/anomalyscope/anomalyscope-go/pkg/logger"
)

const (
	exitSuccess = 0
	exitFailure = 1

	// retentionDays is how long stored anomaly records are kept
	retentionDays = 90
)

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse CLI arguments first
	cli := config.ParseCLI()

	// Handle -help flag
	if cli.ShowHelp {
		config.PrintUsage()
		return exitSuccess
	}

	// Handle -version flag
	if cli.ShowVersion {
		fmt.Printf("anomalyscope-probe %s\n", version)
		if gitCommit != "unknown" {
			fmt.Printf("  commit: %s\n", gitCommit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
		return exitSuccess
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// Load configuration with CLI overrides
	cfg, err := config.LoadWithCLI(cli)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	// Initialize logger with credential sanitization
	baseLog := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		LogDir:     "./logs",
		Filename:   "probe.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	})
	log := logging.NewSecure(baseLog)
	defer func() {
		if err := log.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()

	log.Info().Str("providers", strings.Join(cfg.Providers, ",")).Msg("Starting cross-provider drift probe")
	log.Info().Int("runs", cfg.Runs).Float64("temperature", cfg.Temperature).Float64("threshold", cfg.Threshold).Msg("Probe parameters")

	if err := runProbe(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Probe failed")
		return exitFailure
	}

	log.Info().Msg("Probe completed successfully")
	return exitSuccess
}

func runProbe(ctx context.Context, cfg *config.Config, log *logging.SecureLogger) error {
	startTime := time.Now()

	// 1. Initialize storage (if enabled)
	var store *storage.Storage
	var err error

	if cfg.EnableDatabase {
		store, err = storage.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func(store *storage.Storage) {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}(store)
		log.Info().Str("path", cfg.DatabasePath).Msg("Database initialized")
	}

	// 2. Initialize Telegram client (optional side channel)
	var telegramClient *notification.TelegramClient
	if cfg.HasTelegram() {
		telegramClient, err = notification.NewTelegramClient(
			cfg.TelegramBotToken,
			cfg.TelegramArchiveChannel,
			cfg.TelegramAlertsChannel,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		defer func(telegramClient *notification.TelegramClient) {
			if err := telegramClient.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Telegram client")
			}
		}(telegramClient)

		botInfo := telegramClient.GetBotInfo()
		log.Info().
			Str("username", botInfo["username"].(string)).
			Msg("Telegram bot initialized")
	}

	// 3. Build providers for the configured selection
	registry := buildRegistry(cfg)

	// 4. Sample each provider and compute its within-provider consistency
	runs := make(map[string]*drift.ProviderRun, len(cfg.Providers))
	for _, name := range cfg.Providers {
		pt, err := provider.ParseType(name)
		if err != nil {
			return err
		}

		p, err := registry.Build(pt)
		if err != nil {
			return fmt.Errorf("failed to build provider %s: %w", name, err)
		}

		log.Info().
			Str("provider", name).
			Int("samples", cfg.Runs).
			Msg("Sampling provider...")

		responses, err := p.Generate(ctx, cfg.Prompt, cfg.Temperature, cfg.Runs)
		if err != nil {
			// A provider failure is fatal: a card built from a partial
			// sample set would misreport divergence.
			return fmt.Errorf("provider %s failed: %w", name, err)
		}

		run := drift.NewProviderRun(name, responses)
		runs[name] = run

		log.Info().
			Str("provider", name).
			Float64("mean_similarity", run.MeanSimilarity).
			Float64("min_similarity", run.MinSimilarity).
			Msg("Provider sampled")
	}

	// 5. Build the anomaly card
	card, err := report.NewCard(report.ProbeParams{
		Prompt:      cfg.Prompt,
		Runs:        cfg.Runs,
		Temperature: cfg.Temperature,
		Threshold:   cfg.Threshold,
	}, cfg.Providers, runs)
	if err != nil {
		return err
	}

	crossSim, _ := card.Meta["cross_similarity"].(float64)
	log.Info().
		Str("anomaly", card.ID).
		Str("severity", card.Severity).
		Float64("cross_similarity", crossSim).
		Msg("Drift classified")

	// 6. Write report files. A write failure is fatal: the card is the
	// probe's product.
	writer := report.NewWriter(cfg.ReportsDir)
	paths, err := writer.Write(card)
	if err != nil {
		return fmt.Errorf("failed to write anomaly report: %w", err)
	}
	log.Info().
		Str("json", paths["json"]).
		Str("md", paths["md"]).
		Str("latest", paths["latest"]).
		Msg("Anomaly report written")

	// 7. Persist to database (best effort)
	if store != nil {
		if id, err := store.SaveCard(card); err != nil {
			log.Warn().Err(err).Msg("Failed to save anomaly to database")
		} else {
			log.Info().Int64("id", id).Msg("Anomaly saved to database")
		}

		deleted, err := store.CleanupOldCards(retentionDays)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup old anomaly records")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Old anomaly records cleaned up")
		}
	}

	// 8. Notify (best effort, never aborts the run)
	if telegramClient != nil {
		if err := telegramClient.SendCard(card); err != nil {
			log.Warn().Err(err).Msg("Failed to send Telegram notification")
		} else {
			log.Info().Msg("Telegram notification sent")
		}
	}

	totalDuration := time.Since(startTime)
	log.Info().
		Float64("total_duration_s", totalDuration.Seconds()).
		Msg("All operations completed")

	return nil
}

// buildRegistry wires a provider factory for each supported type. Factories
// are lazy, so unselected providers cost nothing.
func buildRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	proxyURL := cfg.GetProxyURL(true) // HTTPS proxy for API calls

	_ = registry.Register(provider.TypeOpenAI, func() (provider.Provider, error) {
		return provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIModel,
			ProxyURL:       proxyURL,
			TimeoutSeconds: cfg.AITimeoutSeconds,
			MaxTokens:      cfg.AIMaxTokens,
		})
	})

	_ = registry.Register(provider.TypeAnthropic, func() (provider.Provider, error) {
		return provider.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, proxyURL, cfg.AITimeoutSeconds, cfg.AIMaxTokens)
	})

	_ = registry.Register(provider.TypeOllama, func() (provider.Provider, error) {
		return provider.NewOllamaClient(provider.OllamaConfig{
			BaseURL:        cfg.OllamaBaseURL,
			Model:          cfg.OllamaModel,
			TimeoutSeconds: cfg.AITimeoutSeconds,
			MaxTokens:      cfg.AIMaxTokens,
		})
	})

	// LM Studio speaks the OpenAI chat completion protocol
	_ = registry.Register(provider.TypeLMStudio, func() (provider.Provider, error) {
		return provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:         "lm-studio", // LM Studio accepts any key
			Model:          cfg.LMStudioModel,
			BaseURL:        strings.TrimSuffix(cfg.LMStudioBaseURL, "/") + "/v1",
			TimeoutSeconds: cfg.AITimeoutSeconds,
			MaxTokens:      cfg.AIMaxTokens,
			Name:           provider.TypeLMStudio,
		})
	})

	return registry
}
