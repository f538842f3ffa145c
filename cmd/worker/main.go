package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolsascode/bfm/info/internal/bootstrap"
	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/metrics"
	"github.com/toolsascode/bfm/info/internal/queuefactory"
	"github.com/toolsascode/bfm/info/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	// Check if queue is enabled
	if !cfg.Queue.Enabled {
		logger.Fatalf("Queue is not enabled. Set BFM_QUEUE_ENABLED=true to use the worker")
	}

	rt, err := bootstrap.Open(context.Background(), cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer func() { _ = rt.Close() }()

	// Create queue
	q, err := queuefactory.NewQueue(queuefactory.FromConfig(cfg))
	if err != nil {
		logger.Fatalf("Failed to create queue: %v", err)
	}

	collector := metrics.NewCollector("bfm_worker")
	if cfg.Server.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsServer := &http.Server{
			Addr:              ":" + cfg.Server.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Infof("Serving worker metrics on port %s", cfg.Server.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	// Create worker
	w := worker.NewWorker(rt.Service, q, rt.Source, collector)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start worker in goroutine
	go func() {
		if err := w.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Worker error: %v", err)
			sigChan <- syscall.SIGTERM
		}
	}()

	logger.Info("Migration info worker started. Press Ctrl+C to stop.")

	// Wait for signal
	<-sigChan
	logger.Info("Shutting down worker...")
	cancel()

	// Stop worker
	if err := w.Stop(); err != nil {
		logger.Errorf("Error stopping worker: %v", err)
	}

	logger.Info("Worker stopped")
}
