package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"keystone/api"
	"keystone/clock"
	"keystone/config"
	"keystone/domain"
	"keystone/logging"
	"keystone/metrics"
	"keystone/storage"
	"keystone/tracing"

	"go.uber.org/zap"
)

// App is one assembled process.
type App struct {
	Settings config.Settings
	Logger   *zap.SugaredLogger
	DB       *storage.DB
	Server   *api.Server
	Tracer   *tracing.Provider
	Clock    *clock.Clock
	Routers  domain.Routers

	logging    *logging.Logger
	discoverer *domain.Discoverer

	serveErr     chan error
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewApp loads settings and builds every component. On error, whatever was
// opened is released and no App is returned.
func NewApp(ctx context.Context, opts ...Option) (_ *App, err error) {
	o := newOptions(opts)

	settings, err := o.loadSettings()
	if err != nil {
		return nil, err
	}

	app := &App{Settings: settings, serveErr: make(chan error, 1)}
	defer func() {
		if err != nil {
			app.release(ctx)
		}
	}()

	if o.logger != nil {
		app.Logger = o.logger
	} else {
		app.logging, err = logging.New(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		app.Logger = app.logging.SugaredLogger
		if app.logging.Sink() != nil {
			app.Logger.Infow("Remote log sink enabled",
				"dataset", settings.Axiom.Dataset,
				"batch_size", settings.Axiom.LogBatchSize,
				"flush_interval", settings.Axiom.FlushInterval().String())
		}
	}
	app.Logger.Infow("Starting application", settings.Describe()...)

	tracingOpts := []tracing.Option{tracing.WithLogger(app.Logger)}
	if o.exporter != nil {
		tracingOpts = append(tracingOpts, tracing.WithExporter(o.exporter), tracing.WithSyncExport())
	}
	app.Tracer, err = tracing.Setup(ctx, settings, tracingOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app.Clock = clock.New(settings.Timezone, app.Logger)

	app.DB, err = OpenDatabase(ctx, settings, app.Logger)
	if err != nil {
		return nil, err
	}
	if settings.AutoCreateSchema {
		if _, err = Migrate(ctx, app.DB, o.registry, app.Logger); err != nil {
			return nil, err
		}
	}

	app.discoverer = domain.NewDiscoverer(o.resolveDomainsRoot(settings), o.registry, app.Logger)
	app.Routers, err = app.discoverer.Routers()
	if err != nil {
		return nil, err
	}

	var serverOpts []api.ServerOption
	if settings.Tracing.Enabled {
		serverOpts = append(serverOpts, api.WithTracerProvider(app.Tracer))
	}
	if settings.RateLimitRPS > 0 && settings.RateLimitRedisURL != "" {
		limiter, err := api.DialRedisRateLimiter(ctx, settings.RateLimitRedisURL, settings.RateLimitRPS, settings.RateLimitBurst)
		if err != nil {
			return nil, err
		}
		app.Logger.Infow("Rate limits shared through Redis", "window", limiter.Window().String())
		serverOpts = append(serverOpts, api.WithLimiter(limiter))
	}
	app.Server = api.NewServer(settings, app.Logger, serverOpts...)

	if err = app.mountDomains(); err != nil {
		return nil, err
	}

	metrics.DomainRouters.Set(float64(len(app.Routers)))
	metrics.SetBuildInfo(settings.Version, settings.Environment.String())

	app.Logger.Infow("Application ready",
		"domains", app.Routers.Names(),
		"addr", settings.Addr())
	return app, nil
}

func (o options) resolveDomainsRoot(settings config.Settings) string {
	root := settings.DomainsRoot
	if o.domainsRoot != "" {
		root = o.domainsRoot
	}
	if filepath.IsAbs(root) {
		return root
	}
	return filepath.Join(o.workDir, root)
}

func (a *App) mountDomains() error {
	deps := domain.Deps{
		Settings: a.Settings,
		DB:       a.DB,
		Logger:   a.Logger,
		Clock:    a.Clock,
		Tracer:   a.Tracer,
		Validate: api.NewValidator(),
	}

	for _, name := range a.Routers.Names() {
		router, err := a.Routers[name](deps)
		if err != nil {
			return fmt.Errorf("failed to build %s router: %w", name, err)
		}
		router.Routes(a.Server.Mount(name))
		a.Logger.Infow("Mounted domain router",
			"domain", name,
			"path", a.Settings.APIPrefix+"/"+name)
	}
	return nil
}

// Handler returns the assembled HTTP handler.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Start binds HOST:PORT and serves in the background. Bind errors are
// returned directly; later serve errors end WaitForShutdown.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.Settings.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Settings.Addr(), err)
	}
	return a.Serve(ln)
}

// Serve serves on ln in the background.
func (a *App) Serve(ln net.Listener) error {
	go func() {
		if err := a.Server.Serve(ln); err != nil {
			a.serveErr <- err
		}
		close(a.serveErr)
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, or until the server
// stops on its own. It returns the server error, if any.
func (a *App) WaitForShutdown() error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Logger.Infow("Shutdown signal received", "signal", sig.String())
		return nil
	case err, ok := <-a.serveErr:
		if ok && err != nil {
			a.Logger.Errorw("HTTP server stopped", "error", err)
			return err
		}
		return nil
	}
}

// Shutdown stops the components in dependency order, each phase bounded by
// SHUTDOWN_TIMEOUT_SECONDS. Repeat calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.Logger.Info("Shutting down...")
		a.shutdownErr = a.release(ctx)
	})
	return a.shutdownErr
}

// release runs the shutdown phases for whatever is set.
func (a *App) release(ctx context.Context) error {
	var errs []error
	phase := func(name string, fn func(context.Context) error) {
		pctx, cancel := context.WithTimeout(ctx, a.Settings.ShutdownTimeout())
		defer cancel()
		if err := fn(pctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if a.Logger != nil {
				a.Logger.Errorw("Shutdown phase failed", "phase", name, "error", err)
			}
		}
	}

	if a.Server != nil {
		phase("http server", a.Server.Shutdown)
	}
	if a.Tracer != nil {
		phase("tracer provider", a.Tracer.Shutdown)
	}
	if a.logging != nil {
		phase("log sink", a.logging.Close)
	}
	if a.DB != nil {
		phase("database", func(context.Context) error { return a.DB.Close() })
	}
	return errors.Join(errs...)
}
