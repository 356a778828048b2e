// Package logging builds the process logger: a console core for humans or
// log collectors, plus an optional batched sink that ships JSON events to
// Axiom.
package logging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"keystone/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process logger plus the resources it owns.
type Logger struct {
	*zap.SugaredLogger

	base          *zap.Logger
	sink          *BatchSink
	restoreStdLog func()
}

type options struct {
	console    io.Writer
	fallback   io.Writer
	httpClient *http.Client
	hostname   func() (string, error)
}

// Option customizes New. The defaults write to stdout and stderr.
type Option func(*options)

// WithConsole redirects the console core.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithFallback sets where the remote sink reports drops and delivery
// failures.
func WithFallback(w io.Writer) Option {
	return func(o *options) { o.fallback = w }
}

// WithHTTPClient sets the client used by the remote sink.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// ParseLevel accepts the LOG_LEVEL spellings, including WARNING.
func ParseLevel(raw string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return level, config.WrapError("LOG_LEVEL", "is not a valid level", err)
	}
	return level, nil
}

// New builds the logger described by settings.
func New(settings config.Settings, opts ...Option) (*Logger, error) {
	o := options{
		console:  os.Stdout,
		fallback: os.Stderr,
		hostname: os.Hostname,
	}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if settings.LogConsoleEnabled {
		cores = append(cores, consoleCore(settings.Debug, o.console, level))
	}

	var sink *BatchSink
	if settings.Axiom.LogsEnabled {
		sink, err = newAxiomSink(settings.Axiom, o)
		if err != nil {
			// Remote shipping is best effort; the console keeps working.
			fmt.Fprintf(o.fallback, "Axiom logging disabled: %v\n", err)
		} else {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(remoteEncoderConfig()), sink, level))
		}
	}

	zapOpts := []zap.Option{zap.AddCaller(), zap.Fields(staticFields(settings, o.hostname)...)}
	if settings.Debug {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	base := zap.New(zapcore.NewTee(cores...), zapOpts...)
	restore, err := zap.RedirectStdLogAt(base.Named("stdlib"), zapcore.InfoLevel)
	if err != nil {
		restore = func() {}
	}

	return &Logger{
		SugaredLogger: base.Sugar(),
		base:          base,
		sink:          sink,
		restoreStdLog: restore,
	}, nil
}

// Desugar returns the structured logger.
func (l *Logger) Desugar() *zap.Logger { return l.base }

// Sink returns the remote sink, or nil when shipping is disabled.
func (l *Logger) Sink() *BatchSink { return l.sink }

// Close flushes buffered entries and stops the remote sink. It is safe to
// call more than once.
func (l *Logger) Close(ctx context.Context) error {
	_ = l.base.Sync()
	l.restoreStdLog()
	l.restoreStdLog = func() {}
	if l.sink == nil {
		return nil
	}
	return l.sink.Close(ctx)
}

// consoleCore mirrors the development console: colored capital levels,
// ISO8601 timestamps and short callers. Outside debug mode it emits JSON.
func consoleCore(debug bool, w io.Writer, level zapcore.Level) zapcore.Core {
	var encoder zapcore.Encoder
	if debug {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewCore(encoder, zapcore.AddSync(w), level)
}

func remoteEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "_time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "function",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func staticFields(settings config.Settings, hostname func() (string, error)) []zap.Field {
	host, err := hostname()
	if err != nil {
		host = "unknown"
	}
	return []zap.Field{
		zap.String("app", settings.AppName),
		zap.String("environment", settings.Environment.String()),
		zap.String("version", settings.Version),
		zap.String("host", host),
		zap.Int("pid", os.Getpid()),
	}
}

func newAxiomSink(s config.AxiomSettings, o options) (*BatchSink, error) {
	apiKey := strings.TrimSpace(s.APIKey)
	dataset := strings.TrimSpace(s.Dataset)
	if apiKey == "" || dataset == "" {
		return nil, fmt.Errorf("missing API key or dataset name")
	}

	endpoint := strings.TrimRight(s.BaseURL, "/") + "/v1/datasets/" + dataset + "/ingest"
	return NewBatchSink(SinkConfig{
		Endpoint:      endpoint,
		APIKey:        apiKey,
		Dataset:       dataset,
		BatchSize:     s.LogBatchSize,
		FlushInterval: s.FlushInterval(),
		Timeout:       s.RequestTimeout(),
		Client:        o.httpClient,
		Fallback:      o.fallback,
	}), nil
}
