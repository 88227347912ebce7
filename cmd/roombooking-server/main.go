package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"roombooking/backend/internal/auth"
	"roombooking/backend/internal/config"
	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/service/accounts"
	"roombooking/backend/internal/service/calendar"
	"roombooking/backend/internal/service/reservations"
	"roombooking/backend/internal/store"
	"roombooking/backend/internal/store/memory"
	"roombooking/backend/internal/store/postgres"
	grpcTransport "roombooking/backend/internal/transport/grpc"
	"roombooking/backend/internal/transport/rest"
)

type readyStore interface {
	store.ReservationStore
	Ping(ctx context.Context) error
}

func main() {
	log := newLogger("info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	log.Info(
		"starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rooms, err := defaultRooms()
	if err != nil {
		log.Error("room seed invalid", slog.Any("err", err))
		os.Exit(1)
	}
	if !cfg.SeedEnabled {
		rooms = nil
	}

	st, closeStore, err := openStore(ctx, log, cfg, rooms)
	if err != nil {
		os.Exit(1)
	}
	defer closeStore()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Error("token issuer setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	directory := accounts.NewService(issuer)
	if cfg.SeedEnabled {
		directory.Seed(accounts.DefaultUsers...)
	}

	var counter rest.Counter
	if rdb := openRedis(ctx, log, cfg); rdb != nil {
		defer func() { _ = rdb.Close() }()
		counter = rest.NewRedisCounter(rdb)
	}

	httpHandler := rest.New(rest.Deps{
		Engine:   reservations.NewService(st, reservations.RealClock{}),
		Calendar: calendar.NewService(st),
		Accounts: directory,
		Tokens:   issuer,
		RateLimit: rest.RateLimit(rest.RateLimitConfig{
			Enabled: cfg.RateLimitEnabled,
			Limit:   cfg.RateLimitLimit,
			Window:  cfg.RateLimitWindow,
		}, counter, log),
		Log:            log,
		RequestTimeout: cfg.HTTPRequestTimeout,
	})
	httpServer := &http.Server{
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, health := grpcTransport.NewServer(log, cfg.GRPCRequestTimeout)

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Error("http listen failed", slog.Any("err", err), slog.String("http_addr", cfg.HTTPAddr))
		os.Exit(1)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		health.Watch(gctx, st, cfg.HealthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			log.Info("shutdown signal received")
		}
		health.Shutdown()
		shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("stopped")
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config, rooms []domain.Room) (readyStore, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		log.Info("using in-memory store", slog.Int("rooms", len(rooms)))
		return memory.New(rooms...), func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := postgres.Open(openCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, err
	}
	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}

	if err := postgres.SeedRooms(openCtx, db, rooms); err != nil {
		log.Error("room seed failed", slog.Any("err", err))
		closeDB()
		return nil, nil, err
	}
	return postgres.NewReservationStore(db), closeDB, nil
}

// openRedis returns nil when Redis is not configured or not reachable; the
// rate limiter then lets every request through.
func openRedis(ctx context.Context, log *slog.Logger, cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured; rate limiting disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable; rate limiting disabled", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		_ = rdb.Close()
		return nil
	}
	log.Info("redis connected", slog.String("redis_addr", cfg.RedisAddr))
	return rdb
}

func defaultRooms() ([]domain.Room, error) {
	rooms := make([]domain.Room, 0, len(domain.DefaultRooms))
	for _, name := range domain.DefaultRooms {
		r, err := domain.NewRoom(name)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

func shutdown(log *slog.Logger, hs *http.Server, gs *grpc.Server, timeout time.Duration) {
	log.Info("shutting down", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = hs.Close()
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		gs.Stop()
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", "roombooking-server"),
	)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
