// Package app starts the lifecycle runtime: storage, domain services, the
// health endpoint, and the background sweep loops.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fableforge/fableforge/internal/platform/timeouts"
	"github.com/fableforge/fableforge/internal/services/lifecycle/domain"
	"github.com/fableforge/fableforge/internal/services/lifecycle/notify"
	lifecyclesqlite "github.com/fableforge/fableforge/internal/services/lifecycle/storage/sqlite"
)

// RuntimeConfig controls lifecycle startup and loop behavior.
type RuntimeConfig struct {
	Port               int
	DBPath             string
	SweepInterval      time.Duration
	DispatchInterval   time.Duration
	AccountGrace       time.Duration
	DefaultGrace       time.Duration
	ConfirmationTTL    time.Duration
	ConsentTTL         time.Duration
	InactivityLimit    time.Duration
	DormancyPeriod     time.Duration
	FailedRetryCoolOff time.Duration
	MaxItemAttempts    int
	RetryBackoff       time.Duration
	RetryMaxDelay      time.Duration
}

const (
	defaultLifecyclePort = 8091
	defaultLifecycleDB   = "data/lifecycle.db"
)

// Run starts the lifecycle runtime and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultLifecyclePort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultLifecycleDB
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = timeouts.SweepPass
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = timeouts.NotifyDispatch
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lifecycle storage dir: %w", err)
		}
	}

	store, err := lifecyclesqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open lifecycle sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close lifecycle sqlite store: %v", closeErr)
		}
	}()

	queue := notify.NewQueue(store, nil, nil)
	grace := domain.DefaultGracePeriods()
	if cfg.AccountGrace > 0 {
		grace.Account = cfg.AccountGrace
	}
	if cfg.DefaultGrace > 0 {
		grace.Story = cfg.DefaultGrace
		grace.Character = cfg.DefaultGrace
		grace.LibraryMember = cfg.DefaultGrace
		grace.ConversationAsset = cfg.DefaultGrace
	}
	service := domain.NewService(domain.Deps{
		Requests:   store,
		Tokens:     store,
		Inactivity: store,
		Consents:   store,
		Entities:   store,
		Notifier:   queue,
	}, domain.Config{
		Grace:           grace,
		ConfirmationTTL: cfg.ConfirmationTTL,
		ConsentTTL:      cfg.ConsentTTL,
		Engine: domain.EngineConfig{
			MaxItemAttempts:    cfg.MaxItemAttempts,
			RetryBackoff:       cfg.RetryBackoff,
			RetryMaxDelay:      cfg.RetryMaxDelay,
			FailedRetryCoolOff: cfg.FailedRetryCoolOff,
			DormancyPeriod:     cfg.DormancyPeriod,
		},
		Retention: domain.RetentionConfig{
			InactivityLimit: cfg.InactivityLimit,
		},
	})
	dispatcher := notify.NewDispatcher(store, notify.LogSender{}, notify.DispatcherConfig{}, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on lifecycle port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("lifecycle.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("lifecycle server listening at %v", listener.Addr())
	return runLoops(ctx, service, dispatcher, cfg)
}

// runLoops drives the three periodic passes until ctx is cancelled. Pass
// errors are logged; only context cancellation stops the runtime.
func runLoops(ctx context.Context, service *domain.Service, dispatcher *notify.Dispatcher, cfg RuntimeConfig) error {
	tracer := otel.Tracer("lifecycle")

	sweep := time.NewTicker(cfg.SweepInterval)
	defer sweep.Stop()
	dispatch := time.NewTicker(cfg.DispatchInterval)
	defer dispatch.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			runPass(ctx, tracer, "lifecycle.retention_sweep", func(ctx context.Context) (int, error) {
				return service.Retention().SweepOnce(ctx)
			})
			runPass(ctx, tracer, "lifecycle.execution_sweep", func(ctx context.Context) (int, error) {
				return service.Engine().SweepOnce(ctx)
			})
		case <-dispatch.C:
			runPass(ctx, tracer, "lifecycle.notify_dispatch", dispatcher.DispatchOnce)
		}
	}
}

func runPass(ctx context.Context, tracer trace.Tracer, name string, pass func(context.Context) (int, error)) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	processed, err := pass(ctx)
	span.SetAttributes(attribute.Int("lifecycle.processed", processed))
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		log.Printf("%s: %v", name, err)
	}
}
