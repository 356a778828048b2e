package bootstrap

import (
	"keystone/config"
	"keystone/domain"
	"keystone/storage"
	"keystone/version"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type options struct {
	environment    string
	hasEnvironment bool
	resolver       *version.Resolver
	registry       *domain.Registry
	domainsRoot    string
	exporter       sdktrace.SpanExporter
	logger         *zap.SugaredLogger
	workDir        string
}

// Option customizes NewApp.
type Option func(*options)

// WithEnvironment selects the profile explicitly instead of reading
// ENVIRONMENT.
func WithEnvironment(indicator string) Option {
	return func(o *options) {
		o.environment = indicator
		o.hasEnvironment = true
	}
}

// WithVersionResolver replaces the process version resolver.
func WithVersionResolver(r *version.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithRegistry replaces the process domain registry.
func WithRegistry(r *domain.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithDomainsRoot overrides DOMAINS_ROOT.
func WithDomainsRoot(root string) Option {
	return func(o *options) { o.domainsRoot = root }
}

// WithSpanExporter exports spans synchronously to exp instead of Axiom.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithLogger uses logger instead of building one from the settings. The
// caller keeps ownership; Shutdown does not sync it.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithWorkDir sets the directory holding .env files. A relative domains
// root is resolved against it.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

func newOptions(opts []Option) options {
	o := options{workDir: "."}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = domain.Default()
	}
	return o
}

func (o options) configOptions() []config.Option {
	cfg := []config.Option{config.WithWorkDir(o.workDir)}
	if o.resolver != nil {
		cfg = append(cfg, config.WithVersionResolver(o.resolver))
	}
	return cfg
}

// LoadSettings resolves the settings NewApp would use.
func LoadSettings(opts ...Option) (config.Settings, error) {
	return newOptions(opts).loadSettings()
}

// loadSettings resolves a relative SQLite DATABASE_URL against the work
// directory, as the .env files and DOMAINS_ROOT are.
func (o options) loadSettings() (config.Settings, error) {
	var (
		settings config.Settings
		err      error
	)
	if o.hasEnvironment {
		settings, err = config.LoadProfile(o.environment, o.configOptions()...)
	} else {
		settings, err = config.Load(o.configOptions()...)
	}
	if err != nil {
		return config.Settings{}, err
	}
	settings.DatabaseURL = storage.ResolveURL(settings.DatabaseURL, o.workDir)
	return settings, nil
}
