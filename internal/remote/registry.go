package remote

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Constructor creates a remote store from dial options.
// Implementations register themselves with the registry using Register().
type Constructor func(opts Options) (Store, error)

// Options carries everything a backend needs to dial.
type Options struct {
	// DSN is the backend connection string (lib/pq conninfo for the
	// postgres backend; ignored by memory).
	DSN string

	// Origin identifies this client on the wire. Writes carry it and
	// subscription events compare it to flag echoes. Empty means a fresh
	// random identity.
	Origin string

	// Logger receives connection and listener diagnostics. nil falls back
	// to stderr.
	Logger *log.Logger
}

// registry maps backend names to their constructors
var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a remote backend constructor.
// This is called from init() functions in backend files.
func Register(name string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("remote: Register constructor is nil for backend %s", name))
	}

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("remote: Register called twice for backend %s", name))
	}

	registry[name] = constructor
}

// New dials the named backend ("postgres", "memory").
func New(backend string, opts Options) (Store, error) {
	registryMutex.RLock()
	constructor := registry[backend]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("unknown remote backend %q (registered: %s)",
			backend, strings.Join(Backends(), ", "))
	}
	return constructor(opts)
}

// Backends returns all registered backend names, sorted.
// Useful for error messages and CLI help.
func Backends() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
