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

	"github.com/harms-haus/memoriae/internal/garden/automation"
	"github.com/harms-haus/memoriae/internal/garden/category"
	"github.com/harms-haus/memoriae/internal/garden/dispatch"
	"github.com/harms-haus/memoriae/internal/garden/seed"
	"github.com/harms-haus/memoriae/internal/garden/sprout"
	"github.com/harms-haus/memoriae/internal/garden/storage"
	gardensqlite "github.com/harms-haus/memoriae/internal/garden/storage/sqlite"
	"github.com/harms-haus/memoriae/internal/garden/sweep"
	"github.com/harms-haus/memoriae/internal/garden/worker"
	"github.com/harms-haus/memoriae/internal/platform/llm"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls garden startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port   int
	DBPath string

	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	JobTimeout    time.Duration

	SweepInterval time.Duration
	OverdueGrace  time.Duration
	SnoozeMinutes int
	DoneRetention time.Duration
	DeadRetention time.Duration

	// ModelFactory builds the text model a job runs against. Nil selects
	// the OpenAI client built from the owner's stored credential.
	ModelFactory worker.ModelFactory
}

const (
	defaultGardenPort = 8093
	defaultGardenDB   = "data/garden.db"
)

// Runtime holds the assembled garden: the façade plus its background loops.
type Runtime struct {
	Garden    *Garden
	Processor *worker.Processor
	Sweeper   *sweep.Sweeper

	store storage.Store
}

// NewRuntime opens storage and wires every garden component.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultGardenDB
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create garden storage dir: %w", err)
		}
	}

	store, err := gardensqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open garden sqlite store: %w", err)
	}

	registry, err := automation.NewRegistry(automation.Defaults()...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build automation registry: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(store, registry, nil, nil)
	engine, err := automation.NewEngine(registry, store, dispatcher)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build pressure engine: %w", err)
	}

	seeds := seed.NewService(store, nil, nil)
	sprouts := sprout.NewService(store, nil, nil)
	categories := category.NewService(store, store, engine)

	models := cfg.ModelFactory
	if models == nil {
		models = openAIModelFactory
	}
	processor := worker.New(store, registry, models, worker.Config{
		PollInterval:  cfg.PollInterval,
		LeaseTTL:      cfg.LeaseTTL,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
		JobTimeout:    cfg.JobTimeout,
	})
	sweeper := sweep.New(store, sprouts, store, sweep.Config{
		Interval:      cfg.SweepInterval,
		OverdueGrace:  cfg.OverdueGrace,
		SnoozeMinutes: cfg.SnoozeMinutes,
		DoneRetention: cfg.DoneRetention,
		DeadRetention: cfg.DeadRetention,
	})

	return &Runtime{
		Garden:    NewGarden(seeds, sprouts, categories, dispatcher, store),
		Processor: processor,
		Sweeper:   sweeper,
		store:     store,
	}, nil
}

// Close releases the runtime's storage.
func (r *Runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

func openAIModelFactory(credential storage.Credential) (automation.TextModel, error) {
	return llm.NewClient(credential.APIKey, credential.Model)
}

// Run starts garden runtime dependencies and the background loops, blocking
// until the context is canceled or the worker loop fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultGardenPort
	}

	runtime, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			log.Printf("close garden sqlite store: %v", closeErr)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on garden port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("garden.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	go func() {
		if err := runtime.Sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sweep loop stopped: %v", err)
		}
	}()

	log.Printf("garden server listening at %v", listener.Addr())
	return runtime.Processor.Run(ctx)
}
