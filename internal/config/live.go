package config

import (
	"sync"
	"sync/atomic"
)

// Live holds the router tunables that may change while the process runs.
//
// Routers read it on every select/update so that epsilon, the entropy
// reset parameters and the enabling flags can be retuned without a restart.
// Tests override values with Store or Update instead of mutating the
// process environment.
type Live struct {
	current atomic.Pointer[RouterConfig]

	mu        sync.Mutex // serializes Update read-modify-write
	listeners []func(old, new RouterConfig)
}

// NewLive creates a cell holding rc.
func NewLive(rc RouterConfig) *Live {
	l := &Live{}
	l.current.Store(&rc)
	return l
}

// Router returns a copy of the current tunables. A nil cell yields defaults.
func (l *Live) Router() RouterConfig {
	if l == nil {
		return DefaultRouterConfig()
	}
	return *l.current.Load()
}

// Store replaces the tunables and notifies listeners.
func (l *Live) Store(rc RouterConfig) {
	l.mu.Lock()
	old := *l.current.Load()
	l.current.Store(&rc)
	listeners := append([]func(old, new RouterConfig){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(old, rc)
	}
}

// Update applies fn to a copy of the current tunables and stores the result.
func (l *Live) Update(fn func(rc *RouterConfig)) {
	l.mu.Lock()
	old := *l.current.Load()
	next := old
	fn(&next)
	l.current.Store(&next)
	listeners := append([]func(old, new RouterConfig){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(old, next)
	}
}

// OnChange registers a callback invoked after every Store or Update.
// Callbacks must be fast and must not call Store or Update.
func (l *Live) OnChange(fn func(old, new RouterConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}
