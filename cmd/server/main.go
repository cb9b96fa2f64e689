package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/bus"
	"github.com/koushikb/bill-intake/internal/client"
	"github.com/koushikb/bill-intake/internal/config"
	"github.com/koushikb/bill-intake/internal/export"
	httpserver "github.com/koushikb/bill-intake/internal/interfaces/http"
	"github.com/koushikb/bill-intake/internal/registry"
	"github.com/koushikb/bill-intake/internal/workflow"
	"github.com/koushikb/bill-intake/pkg/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
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

	logger.Info("Starting bill intake front end",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Int("port", cfg.Server.Port))

	// Backend client
	service := client.NewService(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, logger)

	// Cross-view notification bus and the shared bill registry
	notifications := bus.New(logger)
	bills := registry.New(service, logger)

	// The bills list re-queries whenever an upload is accepted elsewhere
	notifications.Subscribe(bus.TopicBillUploaded, "bills-list", func(n *bus.Notification) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.RequestTimeout)
		defer cancel()
		bills.Refresh(ctx)
	})

	// Initial snapshot; a failed fetch degrades to an empty list
	initCtx, cancelInit := context.WithTimeout(context.Background(), cfg.Backend.RequestTimeout)
	bills.Refresh(initCtx)
	cancelInit()

	maxUploadBytes := int64(cfg.Upload.MaxSizeMB) * 1024 * 1024
	newWorkflow := func() *workflow.Workflow {
		return workflow.New(service, bills, notifications, maxUploadBytes, logger)
	}

	exporter := export.NewExporter(cfg.Export.SheetName, logger)
	handlers := httpserver.NewHandlers(newWorkflow, bills, exporter, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	// Run until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		// Give the logger a moment to flush file outputs
		time.Sleep(100 * time.Millisecond)
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}
