package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"keystone/config"
	"keystone/domain"
	"keystone/storage"
	"keystone/version"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type pingRouter struct{ name string }

func (p pingRouter) Routes(r *mux.Router) {
	r.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(p.name))
	}).Methods(http.MethodGet)
}

// testRegistry holds alpha (router and a migration) and beta (no router).
func testRegistry() *domain.Registry {
	reg := domain.NewRegistry()
	reg.Register(domain.Registration{
		Name:      "alpha",
		NewRouter: func(domain.Deps) (domain.Router, error) { return pingRouter{name: "alpha"}, nil },
		Migrations: []storage.Migration{{
			Version: "1.0.0",
			Name:    "create_alpha",
			Up: func(tx *sqlx.Tx) error {
				_, err := tx.Exec("CREATE TABLE alpha_items (id INTEGER PRIMARY KEY)")
				return err
			},
		}},
	})
	reg.Register(domain.Registration{Name: "beta"})
	return reg
}

type fixture struct {
	dir  string
	root string
	logs *observer.ObservedLogs
	opts []Option
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "domains")
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
	t.Setenv("DATABASE_URL", "sqlite:///"+filepath.Join(dir, "app.db"))

	core, logs := observer.New(zap.DebugLevel)
	return &fixture{
		dir:  dir,
		root: root,
		logs: logs,
		opts: []Option{
			WithEnvironment("development"),
			WithVersionResolver(version.NewResolver()),
			WithRegistry(testRegistry()),
			WithWorkDir(dir),
			WithLogger(zap.New(core).Sugar()),
		},
	}
}

func (f *fixture) newApp(t *testing.T, extra ...Option) *App {
	t.Helper()
	app, err := NewApp(context.Background(), append(f.opts, extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func health(t *testing.T, app *App) map[string]string {
	t.Helper()
	rec := get(t, app.Handler(), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNewApp_DevelopmentDefaultsToDevVersion(t *testing.T) {
	app := newFixture(t).newApp(t)

	assert.Equal(t, map[string]string{
		"status":      "ok",
		"app":         "Keystone",
		"version":     version.Fallback,
		"environment": "development",
	}, health(t, app))
}

func TestNewApp_VersionOverride(t *testing.T) {
	t.Setenv(version.EnvVar, "2.4.1")
	app := newFixture(t).newApp(t, WithVersionResolver(version.NewResolver(version.FromEnv(os.LookupEnv))))

	assert.Equal(t, "2.4.1", health(t, app)["version"])
	assert.Equal(t, "2.4.1", app.Settings.Version)
}

func TestNewApp_MountsOnlyDomainsWithRouters(t *testing.T) {
	f := newFixture(t)
	app := f.newApp(t)

	assert.Equal(t, []string{"alpha"}, app.Routers.Names())

	rec := get(t, app.Handler(), "/api/alpha/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, app.Handler(), "/api/beta/ping").Code)
	assert.Equal(t, 1, f.logs.FilterMessage("Mounted domain router").Len())
}

func TestNewApp_RunsMigrations(t *testing.T) {
	app := newFixture(t).newApp(t)

	var n int
	require.NoError(t, app.DB.Get(&n, "SELECT COUNT(*) FROM alpha_items"))
	assert.Zero(t, n)
}

func TestNewApp_SkipsMigrationsWhenDisabled(t *testing.T) {
	t.Setenv("AUTO_CREATE_SCHEMA", "false")
	app := newFixture(t).newApp(t)

	var n int
	assert.Error(t, app.DB.Get(&n, "SELECT COUNT(*) FROM alpha_items"))
}

func TestNewApp_MissingDomainsRoot(t *testing.T) {
	f := newFixture(t)

	app, err := NewApp(context.Background(), append(f.opts, WithDomainsRoot(filepath.Join(f.dir, "missing")))...)
	require.Error(t, err)
	assert.Nil(t, app)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.DomainsRootKey, cfgErr.Key)
}

func TestNewApp_UnknownEnvironment(t *testing.T) {
	f := newFixture(t)

	_, err := NewApp(context.Background(), append(f.opts, WithEnvironment("staging"))...)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestNewApp_BadDatabaseURL(t *testing.T) {
	f := newFixture(t)
	t.Setenv("DATABASE_URL", "mysql://db/app")

	_, err := NewApp(context.Background(), f.opts...)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestNewApp_RouterFactoryFailure(t *testing.T) {
	f := newFixture(t)
	reg := domain.NewRegistry()
	reg.Register(domain.Registration{
		Name: "alpha",
		NewRouter: func(domain.Deps) (domain.Router, error) {
			return nil, assert.AnError
		},
	})

	_, err := NewApp(context.Background(), append(f.opts, WithRegistry(reg))...)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewApp_TracesRequests(t *testing.T) {
	t.Setenv("TRACING_ENABLED", "true")
	exporter := tracetest.NewInMemoryExporter()
	app := newFixture(t).newApp(t, WithSpanExporter(exporter))

	require.Equal(t, http.StatusOK, get(t, app.Handler(), "/api/alpha/ping").Code)

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "GET /api/alpha/ping", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("http.route", "/api/alpha/ping"))
}

func TestApp_ServeAndShutdown(t *testing.T) {
	app := newFixture(t).newApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, app.Serve(ln))

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))
	assert.NoError(t, app.WaitForShutdown())
	assert.ErrorIs(t, app.DB.HealthCheck(context.Background()), storage.ErrDatabaseClosed)
}

func TestLoadSettings(t *testing.T) {
	settings, err := LoadSettings(WithEnvironment("test"), WithVersionResolver(version.NewResolver()))
	require.NoError(t, err)
	assert.Equal(t, config.ProfileTest, settings.Environment)
	assert.False(t, settings.LogConsoleEnabled)
}

func TestNewApp_SharedRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("RATE_LIMIT_RPS", "0.01")
	t.Setenv("RATE_LIMIT_BURST", "1")
	t.Setenv("RATE_LIMIT_REDIS_URL", "redis://"+mr.Addr())
	app := newFixture(t).newApp(t)

	assert.Equal(t, http.StatusOK, get(t, app.Handler(), "/api/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, app.Handler(), "/api/health").Code)
	assert.NotEmpty(t, mr.Keys())
}

func TestNewApp_UnreachableRateLimitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	t.Setenv("RATE_LIMIT_RPS", "1")
	t.Setenv("RATE_LIMIT_REDIS_URL", "redis://"+addr)

	_, err := NewApp(context.Background(), newFixture(t).opts...)
	assert.Error(t, err)
}

func TestNewApp_ShipsLogsToRemoteSink(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies strings.Builder
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies.Write(body)
		mu.Unlock()
	}))
	defer srv.Close()

	t.Setenv("AXIOM_LOGS_ENABLED", "true")
	t.Setenv("AXIOM_API_KEY", "xaat-test")
	t.Setenv("AXIOM_DATASET", "keystone_logs")
	t.Setenv("AXIOM_BASE_URL", srv.URL)
	t.Setenv("LOG_CONSOLE_ENABLED", "false")
	f := newFixture(t)

	ctx := context.Background()
	app, err := NewApp(ctx,
		WithEnvironment("development"),
		WithVersionResolver(version.NewResolver()),
		WithRegistry(testRegistry()),
		WithWorkDir(f.dir))
	require.NoError(t, err)
	require.NotNil(t, app.logging.Sink())
	require.NoError(t, app.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, bodies.String(), "Remote log sink enabled")
	assert.Contains(t, bodies.String(), "Application ready")
}

func TestNewApp_RelativeDatabaseURLFollowsWorkDir(t *testing.T) {
	f := newFixture(t)
	t.Setenv("DATABASE_URL", "sqlite:///./data/app.db")

	settings, err := LoadSettings(f.opts...)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///"+filepath.Join(f.dir, "data", "app.db"), settings.DatabaseURL)

	f.newApp(t)
	assert.FileExists(t, filepath.Join(f.dir, "data", "app.db"))
}
