package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/ai"
	"github.com/xaenox/shop-bot/internal/bot"
	"github.com/xaenox/shop-bot/internal/ingest"
	"github.com/xaenox/shop-bot/internal/invoice"
	"github.com/xaenox/shop-bot/internal/queue"
	"github.com/xaenox/shop-bot/internal/session"
	"github.com/xaenox/shop-bot/internal/storage"
	"github.com/xaenox/shop-bot/internal/whatsapp"
	"github.com/xaenox/shop-bot/pkg/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start polling and answering messages",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err))
		return err
	}
	defer store.Close()

	assistant := newAIService(cfg.AI, cfg.Bot, store, logger)
	if err := assistant.Initialize(ctx); err != nil {
		logger.Error("Failed to initialize AI providers", zap.Error(err))
		return err
	}

	gateway := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.Timeout)
	outbox := queue.New(gateway, queue.Config{
		Rate:        cfg.Queue.Rate,
		MaxRetries:  cfg.Queue.MaxRetries,
		SendTimeout: cfg.Queue.SendTimeout,
	}, logger)

	sessions := session.NewStore(cfg.Session.Timeout, logger)

	var invoices bot.InvoiceRenderer
	if cfg.Invoice.BaseURL != "" {
		invoices = invoice.NewClient(cfg.Invoice.BaseURL, cfg.Invoice.Timeout)
	} else {
		logger.Info("Invoice renderer not configured, invoices disabled")
	}

	b := bot.New(store, assistant, sessions, outbox, invoices, bot.Config{
		TrialDays:      cfg.Bot.TrialDays,
		MaxFAQs:        cfg.Bot.MaxFAQs,
		InvoiceTimeout: cfg.Invoice.Timeout,
	}, logger)

	poller := ingest.NewPoller(gateway, store, b, ingest.Config{
		Interval:     cfg.Ingest.Interval,
		FetchTimeout: cfg.Ingest.FetchTimeout,
		MediaPattern: cfg.Ingest.MediaPattern,
	}, logger)

	go assistant.Run(ctx, cfg.AI.RefreshInterval)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	logger.Info("Bot started", zap.String("ai", assistant.Describe()))
	poller.Run(ctx)

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancel()

	if err := b.Wait(shutdownCtx); err != nil {
		logger.Warn("Background actions still running", zap.Error(err))
	}
	if err := outbox.Wait(shutdownCtx); err != nil {
		logger.Warn("Outbound queue not drained", zap.Error(err))
	}

	stats := outbox.Stats()
	logger.Info("Stopped",
		zap.Int64("sent", stats.Sent),
		zap.Int64("retried", stats.Retried),
		zap.Int64("dropped", stats.Dropped))
	return nil
}

func openStorage(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.UseInMemory {
		logger.Info("Using in-memory storage", zap.String("seed", cfg.SeedFile))
		mem := storage.NewMemoryStorage()
		if cfg.SeedFile == "" {
			return mem, nil
		}
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := mem.LoadSeed(f); err != nil {
			return nil, err
		}
		return mem, nil
	}

	logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return storage.NewPostgresStorage(storage.DatabaseConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	}, logger)
}

func newAIService(cfg config.AIConfig, botCfg config.BotConfig, store storage.Storage, logger *zap.Logger) *ai.Service {
	factories := ai.DefaultFactories(
		ai.ProviderConfig(cfg.Gemini),
		ai.ProviderConfig(cfg.Liara),
		logger)

	return ai.NewService(store, factories, ai.Config{
		Preference:              cfg.Preference,
		ReplyMaxChars:           cfg.ReplyMaxChars,
		MaxFAQs:                 botCfg.MaxFAQs,
		DepositKeywordThreshold: cfg.DepositKeywordThreshold,
		ImageMaxBytes:           cfg.ImageMaxBytes,
		ImageTimeout:            cfg.ImageTimeout,
	}, logger)
}
