package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/config"
	"github.com/finagent/invoiceflow/internal/gateway/openai"
	httpadapter "github.com/finagent/invoiceflow/internal/interfaces/http"
	"github.com/finagent/invoiceflow/internal/intervention"
	"github.com/finagent/invoiceflow/internal/persistence"
	"github.com/finagent/invoiceflow/internal/pipeline"
	"github.com/finagent/invoiceflow/internal/publish"
	"github.com/finagent/invoiceflow/pkg/utils"
)

func main() {
	// Load .env if present; real environment wins over file values
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice workflow service",
		zap.String("model", cfg.OpenAI.Model),
		zap.Int("port", cfg.Server.Port))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	runLog, err := persistence.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open run log database", zap.Error(err))
	}
	defer runLog.Close()

	generator := openai.NewClient(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
	}, logger)

	var sink publish.Sink
	switch cfg.Publisher.Mode {
	case "excel":
		sink = publish.NewExcelSink(cfg.Publisher.WorkbookPath, cfg.Publisher.SheetName, logger)
	default:
		sink = publish.NewSimulatedSink(cfg.Publisher.ConnectDelay, cfg.Publisher.AppendDelay)
	}
	logger.Info("Publisher sink configured", zap.String("mode", cfg.Publisher.Mode))

	store := intervention.NewMemoryStore()
	coordinator := pipeline.NewCoordinator(generator, sink, store, runLog, logger, nil)

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, coordinator, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
