package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	httpapi "github.com/toolsascode/bfm/info/internal/api/http"
	pbapi "github.com/toolsascode/bfm/info/internal/api/protobuf"
	"github.com/toolsascode/bfm/info/internal/auth"
	"github.com/toolsascode/bfm/info/internal/bootstrap"
	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/metrics"
	"github.com/toolsascode/bfm/info/internal/queue"
	"github.com/toolsascode/bfm/info/internal/queuefactory"
	"github.com/toolsascode/bfm/info/internal/state"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if err := cfg.RequireAPIToken(); err != nil {
		logger.Fatalf("%v", err)
	}

	logger.Info("Initializing BFM info server...")

	rt, err := bootstrap.Open(context.Background(), cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer func() { _ = rt.Close() }()

	collector := metrics.NewCollector("bfm")
	refresher := collector.Instrument(rt.Service)
	if err := refresher.Refresh(context.Background()); err != nil {
		logger.Errorf("Initial refresh failed: %v", err)
	}

	// Initialize queue if enabled
	var producer queue.Producer
	if cfg.Queue.Enabled {
		q, err := queuefactory.NewQueue(queuefactory.FromConfig(cfg))
		if err != nil {
			logger.Fatalf("Failed to create queue: %v", err)
		}
		defer func() { _ = q.Close() }()

		producer = q
		logger.Info("Queue enabled - refresh requests will be handled by workers")
	}

	// Rescan migration files and refresh when they change
	if cfg.Source.WatchInterval > 0 {
		rt.Loader.StartWatching(cfg.Source.WatchInterval, func() {
			if err := refresher.Refresh(context.Background()); err != nil {
				logger.Warnf("Refresh after file change failed: %v", err)
			}
		})
	}

	// Pick up history written by other processes
	if cfg.Info.RefreshInterval > 0 {
		reindexer := state.NewReindexer(refresher, cfg.Info.RefreshInterval)
		reindexer.Start()
		defer reindexer.Stop()
	}

	tokens := auth.NewTokenValidator(cfg.Server.APIToken)

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Custom logger middleware that skips health check endpoints
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if param.Path == "/health" || param.Path == "/api/v1/health" || param.Path == "/metrics" {
			return ""
		}
		return fmt.Sprintf("[GIN] %s | %3d | %13v | %15s | %-7s %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.StatusCode,
			param.Latency,
			param.ClientIP,
			param.Method,
			param.Path,
		)
	}))
	router.Use(gin.Recovery())

	// Add CORS middleware - must be before routes
	router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	httpHandler := httpapi.NewHandler(rt.Service, httpapi.Options{
		Tokens:   tokens,
		Metrics:  collector,
		Producer: producer,
		Scanner:  rt.Loader,
		History:  rt.Store,
		Source:   rt.Source,
	})
	httpHandler.RegisterRoutes(router)

	// Add /health endpoint to prevent 404s (uses same handler as /api/v1/health)
	router.GET("/health", httpHandler.Health)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(pbapi.AuthInterceptor(tokens)))
	pbapi.RegisterInfoServiceServer(grpcServer, pbapi.NewServer(rt.Service, producer, collector))

	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger.Fatalf("Failed to listen on gRPC port %s: %v", cfg.Server.GRPCPort, err)
	}

	go func() {
		logger.Infof("Starting gRPC server on port %s", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatalf("Failed to start gRPC server: %v", err)
		}
	}()

	logger.Info("BFM info server started successfully")
	logger.Infof("HTTP API available at http://localhost:%s", cfg.Server.HTTPPort)
	logger.Infof("gRPC API available at localhost:%s", cfg.Server.GRPCPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warnf("HTTP server forced to shutdown: %v", err)
	}

	// Shutdown gRPC server
	grpcServer.GracefulStop()

	logger.Info("Servers exited")
}
