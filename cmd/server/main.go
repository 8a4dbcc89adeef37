package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sagebattle/sage-server-go/internal/config"
	"github.com/sagebattle/sage-server-go/internal/game"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/repository"
	"github.com/sagebattle/sage-server-go/internal/repository/postgres"
	"github.com/sagebattle/sage-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting sage server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("sage server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	catalog, err := loadCatalog(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	manager := game.NewManager(catalog, store, nil, logger, game.ManagerOptions{
		HandSize:  cfg.Game.HandSize,
		QueueSize: cfg.Game.QueueSize,
		ReplayDir: cfg.Game.ReplayDir,
	})
	logger.Info("game manager initialized",
		zap.Int("hand_size", cfg.Game.HandSize),
		zap.String("replay_dir", cfg.Game.ReplayDir),
	)

	grpcServer, health := server.NewGRPCServer(cfg.Server.GRPC, server.NewGameService(manager, logger), logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.GRPC.Address, err)
	}

	hub := server.NewHub(cfg.Server.WebSocket, manager.Bus(), logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.WebSocket.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(ctx)
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("starting WebSocket server", zap.String("address", cfg.Server.WebSocket.Address))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down gracefully...")
		health.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("WebSocket server shutdown failed", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	logger.Info("sage server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.String("storage", cfg.Storage.Driver),
	)
	return g.Wait()
}

// loadCatalog builds the card catalog: built-in cards, then rows from the cards table
// when configured, then Lua scripts from disk.
func loadCatalog(ctx context.Context, cfg *config.Config, store repository.Store, logger *zap.Logger) (*cards.Catalog, error) {
	catalog, err := cards.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("load built-in catalog: %w", err)
	}
	if cfg.Catalog.FromDB {
		pg, ok := store.(*postgres.Store)
		if !ok {
			return nil, fmt.Errorf("catalog.from_db needs the postgres driver")
		}
		if _, err := pg.LoadCatalog(ctx, catalog); err != nil {
			return nil, fmt.Errorf("load catalog from database: %w", err)
		}
	}
	if dir := cfg.Catalog.ScriptsDir; dir != "" {
		n, err := catalog.LoadScripts(os.DirFS(dir), ".")
		if err != nil {
			return nil, fmt.Errorf("load scripts from %s: %w", dir, err)
		}
		logger.Info("loaded card scripts", zap.String("dir", dir), zap.Int("count", n))
	}
	logger.Info("card catalog ready",
		zap.Int("cards", len(catalog.Templates())),
		zap.Strings("sages", catalog.Sages()),
	)
	return catalog, nil
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
