package domain

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"keystone/config"

	"go.uber.org/zap"
)

// DomainsRootKey is the setting that names the domains directory.
const DomainsRootKey = "DOMAINS_ROOT"

// Routers maps a domain name to its router factory.
type Routers map[string]RouterFactory

// Names returns the discovered domain names in sorted order.
func (r Routers) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Discoverer finds the domains under a root directory that have a
// registered router. The first result, success or failure, is kept for
// the Discoverer's lifetime.
type Discoverer struct {
	root     string
	registry *Registry
	logger   *zap.SugaredLogger

	once    sync.Once
	routers Routers
	err     error
}

// NewDiscoverer scans root against registry. A nil registry means the
// process registry.
func NewDiscoverer(root string, registry *Registry, logger *zap.SugaredLogger) *Discoverer {
	if registry == nil {
		registry = defaultRegistry
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Discoverer{root: root, registry: registry, logger: logger}
}

// Routers returns the discovered routers. Repeat calls return the same map.
func (d *Discoverer) Routers() (Routers, error) {
	d.once.Do(func() {
		d.routers, d.err = d.scan()
	})
	return d.routers, d.err
}

func (d *Discoverer) scan() (Routers, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, config.WrapError(DomainsRootKey, fmt.Sprintf("points to %q, which cannot be read", d.root), err)
	}
	if !info.IsDir() {
		return nil, config.NewError(DomainsRootKey, fmt.Sprintf("points to %q, which is not a directory", d.root))
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, config.WrapError(DomainsRootKey, fmt.Sprintf("points to %q, which cannot be listed", d.root), err)
	}

	routers := make(Routers)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}

		reg, ok := d.registry.Lookup(name)
		if !ok {
			d.logger.Debugw("Skipping domain without registration", "domain", name)
			continue
		}
		if reg.NewRouter == nil {
			d.logger.Debugw("Skipping domain without router", "domain", name)
			continue
		}
		routers[name] = reg.NewRouter
	}

	d.logger.Infow("Discovered domain routers", "root", d.root, "domains", routers.Names())
	return routers, nil
}
