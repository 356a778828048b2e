// Package domain is the registry of compiled-in business domains and the
// discovery step that decides which of their routers are mounted.
//
// A domain package registers itself from init:
//
//	func init() {
//		domain.Register(domain.Registration{
//			Name:       "users",
//			NewRouter:  NewRouter,
//			Migrations: Migrations(),
//		})
//	}
//
// and is compiled in by a blank import in package domains.
package domain

import (
	"fmt"
	"sort"
	"sync"

	"keystone/clock"
	"keystone/config"
	"keystone/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Deps are the shared collaborators handed to every router factory.
type Deps struct {
	Settings config.Settings
	DB       *storage.DB
	Logger   *zap.SugaredLogger
	Clock    *clock.Clock
	Tracer   trace.TracerProvider
	Validate *validator.Validate
}

// Router mounts a domain's endpoints on the subrouter it is given.
type Router interface {
	Routes(r *mux.Router)
}

// RouterFactory builds a domain router from the shared dependencies.
type RouterFactory func(Deps) (Router, error)

// Registration describes one domain. NewRouter is nil for domains without
// an HTTP surface.
type Registration struct {
	Name       string
	NewRouter  RouterFactory
	Migrations []storage.Migration
}

// Registry holds registrations by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

var defaultRegistry = NewRegistry()

// Default returns the process registry that domain packages register into.
func Default() *Registry { return defaultRegistry }

// Register adds reg to the process registry.
func Register(reg Registration) { defaultRegistry.Register(reg) }

// Register adds reg. It panics on an empty or duplicate name.
func (r *Registry) Register(reg Registration) {
	if reg.Name == "" {
		panic("domain: registration without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[reg.Name]; exists {
		panic(fmt.Sprintf("domain: %q already registered", reg.Name))
	}
	r.entries[reg.Name] = reg
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Migrations returns every registered migration ordered by version, then
// domain, then name, each tagged with its owning domain.
func (r *Registry) Migrations() []storage.Migration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []storage.Migration
	for name, reg := range r.entries {
		for _, m := range reg.Migrations {
			if m.Domain == "" {
				m.Domain = name
			}
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if c := storage.CompareVersions(all[i].Version, all[j].Version); c != 0 {
			return c < 0
		}
		if all[i].Domain != all[j].Domain {
			return all[i].Domain < all[j].Domain
		}
		return all[i].Name < all[j].Name
	})
	return all
}
