package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/config"
	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/JonMunkholm/tenantinit/internal/logging"
	"github.com/JonMunkholm/tenantinit/internal/storage"
	"github.com/JonMunkholm/tenantinit/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	box, err := storage.NewCredentialBox(cfg.Security.CredentialKey)
	if err != nil {
		return err
	}
	if cfg.Security.CredentialKey == "" {
		slog.Warn("CREDENTIAL_KEY not set; connections with passwords cannot be registered")
	}

	// Ledger and registry
	var (
		ledger   core.Ledger
		registry core.ConnectionRegistry
	)
	if cfg.Ledger.UsePostgres() {
		pool, err := openPool(ctx, cfg.Ledger)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := storage.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		ledger = storage.NewPostgresLedger(pool)
		registry = storage.NewPostgresRegistry(pool)
		slog.Info("ledger backend ready", "backend", "postgres")
	} else {
		ledger = core.NewMemoryLedger()
		registry = core.NewMemoryRegistry()
		slog.Warn("ledger backend is in memory; initialization history is lost on restart")
	}

	// Workspace content
	var content core.ContentBackend
	if cfg.Mongo.URI != "" {
		client, err := storage.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Warn("mongo disconnect", "error", err)
			}
		}()
		content = storage.NewMongoContent(client.Database(cfg.Mongo.Database), storage.MongoContentOptions{
			VectorDimensions: cfg.Mongo.VectorDimensions,
		})
		slog.Info("content backend ready", "backend", "mongo", "database", cfg.Mongo.Database)
	} else {
		content = storage.NewMemoryContent()
		slog.Warn("MONGO_URI not set; workspace content is kept in memory")
	}

	provisioner := storage.NewProvisioner(box, storage.ProvisionerOptions{
		SSLMode:    cfg.Operations.PostgresSSLMode,
		AuthSource: cfg.Mongo.AuthSource,
	})

	if cfg.Connections.File != "" {
		ds, err := core.LoadConnectionsFile(cfg.Connections.File)
		if err != nil {
			return err
		}
		if err := core.RegisterAll(ctx, registry, ds); err != nil {
			return err
		}
		slog.Info("connections bootstrapped", "file", cfg.Connections.File, "count", len(ds))
	}

	service := core.NewService(ledger, registry, core.CombineBackends(provisioner, content), core.Options{
		MaxFileSize:         cfg.Upload.MaxFileSize,
		MaxConcurrent:       cfg.Operations.MaxConcurrent,
		MaxWait:             cfg.Operations.MaxWaitTime,
		CollaboratorTimeout: cfg.Operations.CollaboratorTimeout,
		DefaultBatchSize:    cfg.Upload.BatchSize,
		Sealer:              box,
	})

	server := web.NewServer(service, web.Options{
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		TrustedProxies:    cfg.Security.TrustedProxies,
		RateLimitEnabled:  cfg.Rate.Enabled,
		RequestsPerMinute: cfg.Rate.RequestsPerMinute,
		RateBurst:         cfg.Rate.Burst,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first, then let running operations finalize
	// their ledger entries.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}

	if status := service.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for operations to finish", "active", status.Active)
		start := time.Now()
		if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("operations did not finish in time", "error", err)
		} else {
			slog.Info("all operations finished", "waited_ms", time.Since(start).Milliseconds())
		}
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openPool(ctx context.Context, cfg config.LedgerConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
