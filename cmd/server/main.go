// Command autorizador-server starts the authentication API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Ivan-Madera/autorizador/internal/cache"
	"github.com/Ivan-Madera/autorizador/internal/config"
	"github.com/Ivan-Madera/autorizador/internal/crypto"
	"github.com/Ivan-Madera/autorizador/internal/limiter"
	"github.com/Ivan-Madera/autorizador/internal/migrate"
	"github.com/Ivan-Madera/autorizador/internal/repository/postgres"
	grpcserver "github.com/Ivan-Madera/autorizador/internal/server/grpc"
	httpserver "github.com/Ivan-Madera/autorizador/internal/server/http"
	"github.com/Ivan-Madera/autorizador/internal/service"
	"github.com/Ivan-Madera/autorizador/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 10 * time.Second
)

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("autorizador-server %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Development() {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l.With(zap.String("version", version))
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("buildDate", buildDate),
		zap.String("env", cfg.Env),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	ver, err := migrate.Up(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	revoked, closeCache, err := revocationStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var lim limiter.Limiter
	if cfg.LoginMaxFails > 0 {
		lim = limiter.NewPG(db.Pool, limiter.Policy{
			Window:   cfg.LoginWindow,
			MaxFails: cfg.LoginMaxFails,
			BlockFor: cfg.LoginBlockFor,
		})
	}

	auth := service.NewAuthService(service.Deps{
		Users:    postgres.NewUserRepo(db),
		Sessions: postgres.NewSessionRepo(db),
		Tokens:   token.NewCodec(cfg.Token(), time.Now),
		Hasher:   crypto.NewHasher(crypto.DefaultParams),
		Limiter:  lim,
		Revoked:  revoked,
		Logger:   logger.Named("auth"),
	}, cfg.Session())

	h := httpserver.NewHandler(auth, db, logger.Named("http"), httpserver.Options{
		AppKey:     cfg.AppKey,
		TrustProxy: cfg.TrustProxy,
		Env:        cfg.Env,
	})
	api := httpserver.NewServer(cfg.HTTPAddr, httpserver.NewRouter(h), logger.Named("http"))

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- api.Serve(httpLis) }()

	var admin *grpcserver.Server
	if cfg.GRPCAddr != "" {
		grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
		admin = grpcserver.New(logger.Named("grpc"), cfg.GRPCReflection)
		go admin.Watch(ctx, db, healthInterval)
		go func() { errCh <- admin.Serve(grpcLis) }()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if admin != nil {
		admin.Stop(shutdownTimeout)
	}
	if err := api.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return serveErr
}

// revocationStore connects Redis when REDIS_URL is set. Without it the
// engine falls back to the database on every bearer check.
func revocationStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("revocation cache disabled")
		return cache.Nop{}, func() {}, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, errors.Join(errors.New("revocation cache"), err)
	}
	return cache.NewRedisRevocationStore(client), func() { _ = client.Close() }, nil
}
