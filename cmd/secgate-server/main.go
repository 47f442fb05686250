package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/vocalia-ai/secgate/internal/api"
	"github.com/vocalia-ai/secgate/internal/auth"
	"github.com/vocalia-ai/secgate/internal/chread"
	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/leakfilter"
	"github.com/vocalia-ai/secgate/internal/registry"
	"github.com/vocalia-ai/secgate/internal/storage"
	"github.com/vocalia-ai/secgate/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("SECGATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("SECGATE_HTTP_PORT", "8080")
	patternPackPath := os.Getenv("SECGATE_PATTERN_PACK")
	keepLeading := envOrDefaultInt("SECGATE_MASK_KEEP_LEADING", 3)
	keepTrailing := envOrDefaultInt("SECGATE_MASK_KEEP_TRAILING", 2)
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("SECGATE_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting secgate server",
		zap.String("http_port", httpPort),
		zap.Int("mask_keep_leading", keepLeading),
		zap.Int("mask_keep_trailing", keepTrailing),
	)

	// Pattern pack — embedded default, or a pack file from disk
	patternSet := registry.MustDefaultPatternSet()
	if patternPackPath != "" {
		pf, err := registry.LoadPackFile(patternPackPath)
		if err != nil {
			logger.Fatal("failed to load pattern pack", zap.String("path", patternPackPath), zap.Error(err))
		}
		patternSet, err = registry.Compile(pf)
		if err != nil {
			logger.Fatal("failed to compile pattern pack", zap.String("path", patternPackPath), zap.Error(err))
		}
		logger.Info("pattern pack loaded",
			zap.String("path", patternPackPath),
			zap.Int("version", patternSet.Version),
		)
	}

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (required: tenant auth and the dashboard API live here)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	authenticator := auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
		Store:    pgStore,
		CacheTTL: time.Duration(cacheTTL) * time.Second,
		Logger:   logger,
	})

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	deps := &api.Dependencies{
		Store:    pgStore,
		Auth:     authenticator,
		Gateway:  gateway.New(registry.NewFieldRegistry()),
		Patterns: patternSet,
		FilterOpts: leakfilter.Options{
			KeepLeadingDigits:  keepLeading,
			KeepTrailingDigits: keepTrailing,
			MaskByte:           '*',
		},
		Writer: writer,
		Reader: chReader,
		Logger: logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("secgate server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
