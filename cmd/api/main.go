package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	fraudapp "riskguard/internal/application/fraud"
	"riskguard/internal/domain/device"
	"riskguard/internal/domain/fraud"
	"riskguard/internal/domain/token"
	"riskguard/internal/domain/velocity"
	"riskguard/internal/domain/webhook"
	"riskguard/internal/infrastructure/auth"
	"riskguard/internal/infrastructure/cache/redis"
	"riskguard/internal/infrastructure/database/postgres"
	"riskguard/internal/infrastructure/http/router"
	"riskguard/internal/interfaces/http/handler"
	"riskguard/internal/pkg/config"
	"riskguard/internal/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load %s: %v", *envFile, err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server exited with error", zap.Error(err))
	}
	zl.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	zl.Info("starting riskguard",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
	)

	// Keyed TTL stores
	backend := &storeBackend{shards: cfg.Store.Shards, logger: zl}
	if cfg.Store.Backend == "redis" {
		redisClient, err := redis.NewClient(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			zl.Warn("redis unavailable, falling back to in-memory stores", zap.Error(err))
		} else {
			defer redisClient.Close()
			backend.redis = redisClient
			backend.opts = redis.StoreOptions{
				Prefix:          cfg.Store.KeyPrefix,
				MaxRetries:      cfg.Store.MaxTxRetries,
				BreakerFailures: cfg.Store.BreakerFailures,
				BreakerTimeout:  cfg.Store.BreakerTimeout,
				Logger:          zl,
			}
			zl.Info("connected to redis", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		}
	}

	// Block state: postgres when enabled and reachable
	var blocks fraud.BlockStateRepository
	health := map[string]handler.HealthChecker{}
	if cfg.Database.Enabled {
		dbClient, err := postgres.NewClient(postgres.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Name:            cfg.Database.Name,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			zl.Warn("database unavailable, keeping block state in the keyed store", zap.Error(err))
		} else if err := dbClient.Migrate(ctx); err != nil {
			_ = dbClient.Close()
			return fmt.Errorf("migrate database: %w", err)
		} else {
			defer dbClient.Close()
			blocks = postgres.NewBlockStateRepository(dbClient)
			health["database"] = dbClient
		}
	}
	if blocks == nil {
		blocks = kvBlockStates(backend, cfg)
	}
	if backend.redis != nil {
		health["redis"] = backend.redis
	}

	// Scoring
	scorerCfg, err := scorerConfig(cfg)
	if err != nil {
		return err
	}
	analyzer, err := reputationAnalyzer(cfg)
	if err != nil {
		return err
	}
	tracker := velocity.NewTracker(newStore[velocity.Record](backend, "velocity", cfg.Store.VelocitySweep), velocityConfig(cfg))
	devices := device.NewStore(newStore[device.Record](backend, "device", cfg.Store.DeviceSweep), deviceConfig(cfg))
	scorer := fraud.NewScorer(scorerCfg, tracker, devices, analyzer, zl.Named("scorer"))
	checkFraud := fraudapp.NewCheckFraudUseCase(scorer, blocks, fraudapp.CheckFraudConfig{
		AutoBlockDuration: cfg.Risk.AutoBlockDuration,
	}, zl.Named("check_fraud"))

	// Webhooks
	providers, err := webhookProviders(cfg)
	if err != nil {
		return err
	}
	ledger := webhook.NewLedger(
		newStore[webhook.LedgerEntry](backend, "idempotency", cfg.Store.IdempotencySweep),
		cfg.Webhook.IdempotencyTTL,
		cfg.Webhook.ProcessingLease,
	)
	gate := webhook.NewGate(webhook.GateConfig{
		Providers:        providers,
		Production:       cfg.IsProduction(),
		OnSignatureError: fraud.FailurePolicy(cfg.Webhook.OnSignatureError),
	}, ledger, zl.Named("webhook"))
	zl.Info("webhook signature policy", zap.String("policy", string(gate.SignaturePolicy())))

	// Tokens
	registry := token.NewRegistry(
		newStore[token.BlacklistEntry](backend, "token_blacklist", cfg.Store.TokenSweep),
		newStore[token.UserIndex](backend, "token_index", cfg.Store.TokenSweep),
		token.Config{HashLength: cfg.Token.HashLength, BulkRevocationTTL: cfg.Token.BulkRevocationTTL},
		zl.Named("token"),
	)
	authn := auth.NewAuthenticator(auth.Config{
		Secret:    cfg.Token.JWTSecret,
		Issuer:    cfg.Token.Issuer,
		AccessTTL: cfg.Token.AccessTTL,
	}, registry, zl.Named("auth"))
	if cfg.Token.JWTSecret == "" {
		zl.Warn("jwt secret not configured, authenticated routes will fail")
	}

	// HTTP
	r := router.NewRouter(router.Config{
		Production:      cfg.IsProduction(),
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
		MaxWebhookBytes: cfg.Webhook.MaxBodyBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, router.Deps{
		Risk:     handler.NewRiskHandler(checkFraud, tracker, zl),
		Auth:     handler.NewAuthHandler(authn, registry, zl),
		Webhook:  handler.NewWebhookHandler(zl.Named("webhook")),
		Health:   handler.NewHealthHandler(version, backend.name(), health),
		Gate:     gate,
		Verifier: authn,
		Checker:  checkFraud,
		Logger:   zl.Named("http"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range backend.sweepers {
		g.Go(func() error { return s.Run(gctx) })
	}

	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("addr", server.Addr), zap.String("store_backend", backend.name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
