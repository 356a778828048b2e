package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"keystone/version"

	"github.com/spf13/viper"
)

// EnvironmentKey selects the active profile.
const EnvironmentKey = "ENVIRONMENT"

// Settings is the resolved configuration for one process. It is built once
// by Load and handed to consumers by value; there is no shared instance.
type Settings struct {
	AppName     string  `mapstructure:"app_name" validate:"required"`
	Debug       bool    `mapstructure:"debug"`
	Environment Profile `mapstructure:"-"`
	Version     string  `mapstructure:"-"`

	APIPrefix   string `mapstructure:"api_prefix" validate:"omitempty,startswith=/,endsnotwith=/"`
	DocsEnabled bool   `mapstructure:"docs_enabled"`

	DatabaseURL      string `mapstructure:"database_url" validate:"required,database_url"`
	AutoCreateSchema bool   `mapstructure:"auto_create_schema"`

	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"min=1"`

	Timezone    string `mapstructure:"timezone"`
	DomainsRoot string `mapstructure:"domains_root" validate:"required"`

	CORSAllowedOrigins Origins  `mapstructure:"cors_allowed_origins"`
	RateLimitRPS       float64  `mapstructure:"rate_limit_rps" validate:"min=0"`
	RateLimitBurst     int      `mapstructure:"rate_limit_burst" validate:"min=1"`
	RateLimitRedisURL  string   `mapstructure:"rate_limit_redis_url" validate:"omitempty,url"`

	LogLevel          string `mapstructure:"log_level" validate:"oneofci=DEBUG INFO WARN WARNING ERROR"`
	LogConsoleEnabled bool   `mapstructure:"log_console_enabled"`

	Axiom   AxiomSettings   `mapstructure:",squash"`
	Tracing TracingSettings `mapstructure:",squash"`
}

// AxiomSettings configures remote log ingestion.
type AxiomSettings struct {
	LogsEnabled             bool    `mapstructure:"axiom_logs_enabled"`
	APIKey                  string  `mapstructure:"axiom_api_key"`
	Dataset                 string  `mapstructure:"axiom_dataset"`
	BaseURL                 string  `mapstructure:"axiom_base_url" validate:"required,url"`
	LogBatchSize            int     `mapstructure:"axiom_log_batch_size" validate:"min=1"`
	LogFlushIntervalSeconds float64 `mapstructure:"axiom_log_flush_interval_seconds" validate:"gt=0"`
	RequestTimeoutSeconds   float64 `mapstructure:"axiom_request_timeout_seconds" validate:"gt=0"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	Enabled       bool    `mapstructure:"tracing_enabled"`
	TracesDataset string  `mapstructure:"axiom_traces_dataset"`
	SampleRatio   float64 `mapstructure:"tracing_sample_ratio" validate:"min=0,max=1"`
}

// Addr returns the listen address.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Settings) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func (a AxiomSettings) FlushInterval() time.Duration {
	return seconds(a.LogFlushIntervalSeconds)
}

func (a AxiomSettings) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// TracesDatasetOrDefault falls back to the log dataset when no dedicated
// traces dataset is configured.
func (s Settings) TracesDatasetOrDefault() string {
	if ds := strings.TrimSpace(s.Tracing.TracesDataset); ds != "" {
		return ds
	}
	return strings.TrimSpace(s.Axiom.Dataset)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func setDefaults(v *viper.Viper) {
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
}

// Defaults returns the base values every profile starts from.
func Defaults() map[string]any {
	return map[string]any{
		"app_name":                 "Keystone",
		"debug":                    false,
		"api_prefix":               "/api",
		"docs_enabled":             false,
		"database_url":             "",
		"auto_create_schema":       false,
		"host":                     "0.0.0.0",
		"port":                     8000,
		"shutdown_timeout_seconds": 15,
		"timezone":                 "UTC",
		"domains_root":             "domains",
		"cors_allowed_origins":     []string{"*"},
		"rate_limit_rps":           0.0,
		"rate_limit_burst":         20,
		"rate_limit_redis_url":     "",
		"log_level":                "INFO",
		"log_console_enabled":      true,

		"axiom_logs_enabled":               false,
		"axiom_api_key":                    "",
		"axiom_dataset":                    "production_logs",
		"axiom_base_url":                   "https://api.axiom.co",
		"axiom_log_batch_size":             50,
		"axiom_log_flush_interval_seconds": 2.0,
		"axiom_request_timeout_seconds":    5.0,

		"tracing_enabled":      false,
		"axiom_traces_dataset": "",
		"tracing_sample_ratio": 1.0,
	}
}

// Option customizes Load.
type Option func(*loader)

type loader struct {
	workDir  string
	resolver *version.Resolver
}

// WithWorkDir sets the directory searched for .env files.
func WithWorkDir(dir string) Option {
	return func(l *loader) { l.workDir = dir }
}

// WithVersionResolver replaces the process-wide version resolver.
func WithVersionResolver(r *version.Resolver) Option {
	return func(l *loader) { l.resolver = r }
}

func newLoader(opts []Option) *loader {
	l := &loader{workDir: "."}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the environment indicator and loads the matching profile.
//
// The indicator comes from the ENVIRONMENT variable, then the ENVIRONMENT
// key of .env, then defaults to development.
func Load(opts ...Option) (Settings, error) {
	l := newLoader(opts)
	indicator, err := l.environmentIndicator()
	if err != nil {
		return Settings{}, err
	}
	return l.load(indicator)
}

// LoadProfile loads settings for an explicit environment indicator.
func LoadProfile(indicator string, opts ...Option) (Settings, error) {
	return newLoader(opts).load(indicator)
}

func (l *loader) environmentIndicator() (string, error) {
	if v, ok := os.LookupEnv(EnvironmentKey); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}

	path := filepath.Join(l.workDir, ".env")
	if !fileExists(path) {
		return "", nil
	}
	hint := viper.New()
	hint.SetConfigFile(path)
	hint.SetConfigType("env")
	if err := hint.ReadInConfig(); err != nil {
		return "", WrapError(".env", "could not be read", err)
	}
	return hint.GetString("environment"), nil
}

func (l *loader) load(indicator string) (Settings, error) {
	profile, err := ParseProfile(indicator)
	if err != nil {
		return Settings{}, err
	}

	v := viper.New()
	setDefaults(v)
	for key, value := range profile.Overrides() {
		v.SetDefault(key, value)
	}

	for _, name := range []string{".env", ".env." + string(profile)} {
		if err := mergeEnvFile(v, filepath.Join(l.workDir, name)); err != nil {
			return Settings{}, err
		}
	}
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(decodeHook())); err != nil {
		return Settings{}, WrapError("settings", "could not be decoded", err)
	}

	settings.Environment = profile
	if l.resolver != nil {
		settings.Version = l.resolver.Resolve()
	} else {
		settings.Version = version.Resolve()
	}
	settings.APIPrefix = strings.TrimSpace(settings.APIPrefix)

	if err := validateSettings(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func mergeEnvFile(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil {
		return WrapError(filepath.Base(path), "could not be read", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Describe returns the non-secret settings for the startup log line.
func (s Settings) Describe() []any {
	return []any{
		"environment", s.Environment.String(),
		"version", s.Version,
		"debug", s.Debug,
		"api_prefix", s.APIPrefix,
		"addr", s.Addr(),
		"database", redactURL(s.DatabaseURL),
		"domains_root", s.DomainsRoot,
		"rate_limit_rps", s.RateLimitRPS,
		"rate_limit_shared", s.RateLimitRedisURL != "",
		"axiom_logs", s.Axiom.LogsEnabled,
		"tracing", s.Tracing.Enabled,
	}
}

func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return fmt.Sprintf("%s://***@%s", scheme, rest[at+1:])
	}
	return raw
}
