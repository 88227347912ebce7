package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ReservationsService is the name probes use to ask about the booking store
// specifically; the empty name reports on the process as a whole.
const ReservationsService = "roombooking.v1.Reservations"

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports readiness over the standard gRPC health protocol.
type Health struct {
	srv *health.Server
	log *slog.Logger
}

// NewServer returns a gRPC server with only the health service registered.
// Every service starts NOT_SERVING until SetServing is called.
func NewServer(log *slog.Logger, requestTimeout time.Duration) (*grpc.Server, *Health) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.health"))

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			DefaultRequestTimeoutInterceptor(requestTimeout),
			loggingInterceptor(log),
		),
	)
	h := &Health{srv: health.NewServer(), log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h.srv)
	return s, h
}

func (h *Health) SetServing() {
	h.set(healthpb.HealthCheckResponse_SERVING)
}

func (h *Health) SetNotServing() {
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks everything NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ReservationsService, st)
}

// Watch pings the store every interval and flips the reported status when
// reachability changes. It returns when ctx is done.
func (h *Health) Watch(ctx context.Context, store pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	serving := h.probe(ctx, store, false, true)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			serving = h.probe(ctx, store, serving, false)
		}
	}
}

func (h *Health) probe(ctx context.Context, store pinger, wasServing, first bool) bool {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := store.Ping(pctx)
	ok := err == nil
	if ok == wasServing && !first {
		return ok
	}
	if ok {
		h.log.Info("store reachable", slog.String("status", "SERVING"))
		h.SetServing()
	} else {
		h.log.Warn("store unreachable", slog.Any("err", err), slog.String("status", "NOT_SERVING"))
		h.SetNotServing()
	}
	return ok
}

// DefaultRequestTimeoutInterceptor applies timeout to calls that arrive
// without a deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug(
			"rpc",
			slog.String("rpc", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
