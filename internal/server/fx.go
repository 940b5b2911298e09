// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/acra-collector/internal/api"
	"github.com/JakeFAU/acra-collector/internal/clock/system"
	"github.com/JakeFAU/acra-collector/internal/config"
	"github.com/JakeFAU/acra-collector/internal/crashlog"
	"github.com/JakeFAU/acra-collector/internal/dispatcher"
	"github.com/JakeFAU/acra-collector/internal/hash/sha256"
	"github.com/JakeFAU/acra-collector/internal/id/uuid"
	"github.com/JakeFAU/acra-collector/internal/ingest"
	"github.com/JakeFAU/acra-collector/internal/logging"
	"github.com/JakeFAU/acra-collector/internal/mailer"
	queueMemory "github.com/JakeFAU/acra-collector/internal/queue/memory"
	"github.com/JakeFAU/acra-collector/internal/telemetry"
	"github.com/JakeFAU/acra-collector/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	dispatch        *dispatcher.Dispatcher
	queue           *queueMemory.Queue
	crashLog        *crashlog.Writer
	tracerShutdown  func(context.Context) error
	shutdownTimeout time.Duration
}

// Options overrides infrastructure during Build. Zero values select the
// production implementations.
type Options struct {
	Fs     afero.Fs
	Sender ingest.Sender
	Logger *zap.Logger
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	app := &App{cfg: cfg, logger: logger, shutdownTimeout: shutdownTimeout}
	app.logger.Info("building application dependencies", zap.Any("config", cfg.Redacted()))

	tp, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.crashLog, err = crashlog.New(crashlog.Config{Path: cfg.CrashLog}, opts.Fs)
	if err != nil {
		return nil, fmt.Errorf("crash log init failed: %w", err)
	}
	app.logger.Info("crash log ready", zap.String("path", app.crashLog.Path()))

	sender := opts.Sender
	if sender == nil {
		sender, err = mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			Timeout:  cfg.SMTPTimeout(),
		}, logger.Named("mailer"))
		if err != nil {
			return nil, fmt.Errorf("mailer init failed: %w", err)
		}
	}

	clock := system.New()
	pipeline := ingest.NewPipeline(
		ingest.PipelineConfig{EmailFrom: cfg.EmailFrom, EmailTo: cfg.EmailTo},
		app.crashLog,
		sender,
		sha256.New(),
		clock,
		logger.Named("pipeline"),
	)

	app.queue = queueMemory.NewQueue(cfg.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Workers)
	for i := range cfg.Workers {
		workers = append(workers, worker.New(i, app.queue, pipeline, clock, logger.Named("worker")))
	}
	app.dispatch = dispatcher.New(app.queue, workers)
	app.logger.Info("worker pool configured",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_depth", cfg.QueueDepth),
	)

	app.apiServer = api.NewServer(app.dispatch, uuid.New(), clock, cfg, logger.Named("api"))
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until SIGINT/SIGTERM or ctx ends, then drains queued
// reports before stopping the workers. Reports still queued after the drain
// timeout are failed so their requests get a 500.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.ListenAddr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Workers outlive the HTTP server so admitted reports can finish.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(workerCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		a.apiServer.SetDraining()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	runErr := g.Wait()

	// Closing the queue lets workers finish what is buffered, then exit.
	a.logger.Info("draining queued reports", zap.Int("pending", a.queue.Len()))
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-time.After(a.shutdownTimeout):
		a.logger.Warn("workers did not drain in time", zap.Duration("timeout", a.shutdownTimeout))
		cancelWorkers()
		<-dispatchDone
	}
	if n := a.queue.Abandon(ingest.ErrQueueClosed); n > 0 {
		a.logger.Error("abandoned queued reports", zap.Int("count", n))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Close releases the queue and flushes observability.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	var errs []error
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync on stdout/stderr returns EINVAL on some platforms.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
