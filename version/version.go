// Package version resolves the running application's version string.
//
// Resolution walks an ordered chain of lookups and stops at the first one
// that reports a value:
//
//  1. the APP_VERSION environment override
//  2. package metadata (a link-time stamp, then the module build info)
//  3. the development fallback, 0.0.0-dev
package version

import (
	"os"
	"runtime/debug"
	"strings"
	"sync"
)

// Fallback is returned when no lookup produces a version.
const Fallback = "0.0.0-dev"

// EnvVar names the environment override.
const EnvVar = "APP_VERSION"

// Version is stamped at link time:
//
//	go build -ldflags "-X keystone/version.Version=1.2.3"
var Version string

// Lookup reports a version and whether one was found. Lookups never fail;
// any problem reading their source counts as absent.
type Lookup func() (string, bool)

// Resolver evaluates a lookup chain once and caches the result.
type Resolver struct {
	chain []Lookup

	once  sync.Once
	value string
}

// NewResolver builds a resolver over the given chain. An empty chain always
// resolves to Fallback.
func NewResolver(chain ...Lookup) *Resolver {
	return &Resolver{chain: chain}
}

// Default returns a resolver over the standard chain: environment override,
// link-time stamp, module build info.
func Default() *Resolver {
	return NewResolver(
		FromEnv(os.LookupEnv),
		FromStamp(func() string { return Version }),
		FromBuildInfo(debug.ReadBuildInfo),
	)
}

// Resolve returns the cached version, evaluating the chain on first use.
func (r *Resolver) Resolve() string {
	r.once.Do(func() {
		r.value = Fallback
		for _, lookup := range r.chain {
			if v, ok := lookup(); ok {
				r.value = v
				return
			}
		}
	})
	return r.value
}

var process = Default()

// Resolve returns the process-wide version.
func Resolve() string {
	return process.Resolve()
}

// FromEnv looks up the APP_VERSION override. Whitespace-only values are
// treated as unset; anything else is returned verbatim.
func FromEnv(lookupEnv func(string) (string, bool)) Lookup {
	return func() (string, bool) {
		v, ok := lookupEnv(EnvVar)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	}
}

// FromStamp reports a version injected at build time.
func FromStamp(stamp func() string) Lookup {
	return func() (string, bool) {
		v := strings.TrimSpace(stamp())
		return v, v != ""
	}
}

// FromBuildInfo reports the main module version recorded by the Go
// toolchain. Local builds record "(devel)", which counts as absent.
func FromBuildInfo(read func() (*debug.BuildInfo, bool)) Lookup {
	return func() (string, bool) {
		info, ok := read()
		if !ok || info == nil {
			return "", false
		}
		v := strings.TrimSpace(info.Main.Version)
		if v == "" || v == "(devel)" {
			return "", false
		}
		return strings.TrimPrefix(v, "v"), true
	}
}
