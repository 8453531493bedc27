// Package app builds and holds the long-lived services of a catalog build:
// logger, admission governor, HTTP access layer, link validator, progress hub,
// source registry, assembler and the optional ops server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/api"
	"github.com/JakeFAU/isocatalog/internal/assembly"
	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/clock/system"
	"github.com/JakeFAU/isocatalog/internal/config"
	"github.com/JakeFAU/isocatalog/internal/fetcher"
	"github.com/JakeFAU/isocatalog/internal/hash/sha256"
	idgen "github.com/JakeFAU/isocatalog/internal/id/uuid"
	"github.com/JakeFAU/isocatalog/internal/linkcheck"
	"github.com/JakeFAU/isocatalog/internal/logging"
	"github.com/JakeFAU/isocatalog/internal/metrics"
	"github.com/JakeFAU/isocatalog/internal/policy/admission"
	"github.com/JakeFAU/isocatalog/internal/progress"
	"github.com/JakeFAU/isocatalog/internal/progress/sinks"
	"github.com/JakeFAU/isocatalog/internal/sources"
	"github.com/JakeFAU/isocatalog/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	runID     uuid.UUID
	governor  *admission.Governor
	client    *fetcher.Client
	registry  *sources.Registry
	assembler *assembly.Assembler
	hub       *progress.Hub
	status    *sinks.StatusSink
	hasher    *sha256.Hasher

	opsServer      *http.Server
	opsAddr        string
	tracerShutdown telemetry.ShutdownFunc
}

type options struct {
	logger    *zap.Logger
	transport http.RoundTripper
}

// Option customizes Build.
type Option func(*options)

// WithLogger replaces the configured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport substitutes the HTTP transport used for upstream requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// Build creates the application's dependencies. On error every component
// built so far is released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}

	a := &App{cfg: cfg, logger: logger, hasher: sha256.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tracerShutdown, err = telemetry.InitTracerProvider(ctx, cfg.Tracing.Enabled, cfg.Tracing.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	metrics.Init()

	a.runID, err = idgen.New().NewRawID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	a.logger = a.logger.With(zap.Stringer("run_id", a.runID))
	a.logger.Info("Building application dependencies", zap.Int("sources", len(cfg.Sources)))

	a.governor, err = admission.NewGovernor(admission.Config{
		GlobalPermits: cfg.Governor.GlobalPermits,
		Hosts:         cfg.Governor.Hosts,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("governor init failed: %w", err)
	}

	var fetchOpts []fetcher.Option
	if o.transport != nil {
		fetchOpts = append(fetchOpts, fetcher.WithTransport(o.transport))
	}
	a.client = fetcher.New(fetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.HTTP.Timeout(),
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase(),
		BackoffMax:  cfg.HTTP.BackoffMax(),
		ProbeMethod: cfg.HTTP.ProbeMethod,
	}, a.governor, a.logger, fetchOpts...)

	validator, err := linkcheck.New(a.client, linkcheck.Config{
		RecordConcurrency: cfg.LinkCheck.RecordConcurrency,
		CacheSize:         cfg.LinkCheck.CacheSize,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("validator init failed: %w", err)
	}

	progressReg := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(progressReg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.status = sinks.NewStatusSink()
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait(),
		SinkTimeout:    cfg.Progress.SinkTimeout(),
		Logger:         a.logger,
	}, sinks.NewLogSink(a.logger.Named("progress")), promSink, a.status)

	a.registry, err = sources.Build(cfg.Sources, a.client, a.logger)
	if err != nil {
		return nil, fmt.Errorf("source registry init failed: %w", err)
	}

	a.assembler = assembly.New(assembly.Config{
		SourceConcurrency: cfg.Assembly.SourceConcurrency,
		RunID:             a.runID,
	}, validator, a.hub, system.New(), a.logger)

	if cfg.Metrics.Addr != "" {
		if err := a.startOpsServer(cfg.Metrics.Addr, progressReg); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) startOpsServer(addr string, progressReg prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ops server listen: %w", err)
	}
	a.opsAddr = ln.Addr().String()
	a.opsServer = &http.Server{
		Handler:           api.NewServer(a.status, a.logger, progressReg).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("Ops server started", zap.String("addr", a.opsAddr))
		if err := a.opsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Ops server error", zap.Error(err))
		}
	}()
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID identifies this build in logs and progress events.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// OpsAddr is the bound ops server address, empty when disabled.
func (a *App) OpsAddr() string {
	return a.opsAddr
}

// Sources returns the registered generators in registration order.
func (a *App) Sources() []sources.Generator {
	return a.registry.Generators()
}

// BuildCatalog runs every registered source through assembly.
func (a *App) BuildCatalog(ctx context.Context) []catalog.Entry {
	return a.assembler.BuildAll(ctx, a.registry.Generators())
}

// Fingerprint hashes entries as published.
func (a *App) Fingerprint(entries []catalog.Entry) (string, error) {
	return catalog.Fingerprint(entries, a.hasher)
}

// Close gracefully shuts down the application. It is safe to call on a
// partially built App.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.opsServer != nil {
		if err := a.opsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Ops server shutdown failed", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("Progress hub close failed", zap.Error(err))
		}
	}
	if a.governor != nil {
		a.governor.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("Shutdown complete")
	// Sync reports EINVAL on terminals.
	_ = a.logger.Sync()
}
