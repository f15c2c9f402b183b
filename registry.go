// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package justrpc

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Handler is the behavior behind a registered method name.
type Handler interface {
	ServeRPC(ctx context.Context, params Params) (any, error)
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, params Params) (any, error)

func (f HandlerFunc) ServeRPC(ctx context.Context, params Params) (any, error) {
	return f(ctx, params)
}

// Registry maps method names to handlers. It is safe for concurrent use, so
// methods may also be registered after serving has started.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// SetLogger sets the logger registrations are reported to. A nil logger
// restores slog.Default.
func (r *Registry) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

// Register adds h under name.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return newError(KindNotCallable, nil, "method name required")
	}
	if h == nil {
		return newError(KindNotCallable, nil, "%s: handler is nil", name)
	}
	if f, ok := h.(HandlerFunc); ok && f == nil {
		return newError(KindNotCallable, nil, "%s: handler is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return newError(KindAlreadyRegistered, nil, "method %q already registered", name)
	}
	r.handlers[name] = h
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("register method", "method", name)
	return nil
}

// RegisterFunc is Register for a plain function.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, params Params) (any, error)) error {
	if fn == nil {
		return r.Register(name, nil)
	}
	return r.Register(name, HandlerFunc(fn))
}

// RegisterModule registers every handler as "module.name". Names are
// registered in sorted order and registration stops at the first failure.
func (r *Registry) RegisterModule(module string, handlers map[string]Handler) error {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.Register(module+"."+name, handlers[name]); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Call invokes the handler registered under name with params in order.
// Failures of the handler are returned as is.
func (r *Registry) Call(ctx context.Context, name string, params Params) (any, error) {
	h, ok := r.Lookup(name)
	if !ok {
		return nil, newError(KindNotRegistered, nil, "method %q not registered", name)
	}
	return h.ServeRPC(ctx, params)
}

// Methods returns the registered names, sorted.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
