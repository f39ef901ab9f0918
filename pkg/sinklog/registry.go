package sinklog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Registry holds named loggers. Applications create one at start-up, pass it
// to the components that need loggers, and close it on exit.
type Registry struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{loggers: make(map[string]*Logger)}
}

// Create builds a logger and registers it under name. It fails with
// ErrLoggerExists when the name is taken; no logger is built in that case.
func (r *Registry) Create(name string, opts ...Option) (*Logger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loggers[name]; ok {
		return nil, fmt.Errorf("%w: %q", types.ErrLoggerExists, name)
	}
	l, err := New(name, opts...)
	if err != nil {
		return nil, err
	}
	r.loggers[name] = l
	return l, nil
}

// Add registers an existing logger under its own name
func (r *Registry) Add(l *Logger) error {
	if l == nil {
		return fmt.Errorf("%w: nil logger", types.ErrInvalidConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loggers[l.Name()]; ok {
		return fmt.Errorf("%w: %q", types.ErrLoggerExists, l.Name())
	}
	r.loggers[l.Name()] = l
	return nil
}

// Get returns the logger registered under name
func (r *Registry) Get(name string) (*Logger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loggers[name]
	return l, ok
}

// Contains reports whether name is registered
func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Remove unregisters name and returns the logger, which stays open.
func (r *Registry) Remove(name string) (*Logger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loggers[name]
	if ok {
		delete(r.loggers, name)
	}
	return l, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered loggers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loggers)
}

// Close shuts down every registered logger and empties the registry.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	loggers := r.loggers
	r.loggers = make(map[string]*Logger)
	r.mu.Unlock()

	var errs error
	for _, name := range sortedKeys(loggers) {
		if err := loggers[name].Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("logger %q: %w", name, err))
		}
	}
	return errs
}

func sortedKeys(m map[string]*Logger) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
