package resilience

import (
	"sync"
	"time"
)

// Registry hands out one breaker per operation category so that failures in
// one category (say geocoding) do not trip another (say persistence).
type Registry struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	opts         []Option
	breakers     map[string]*CircuitBreaker
}

func NewRegistry(threshold int, resetTimeout time.Duration, opts ...Option) *Registry {
	return &Registry{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		opts:         opts,
		breakers:     map[string]*CircuitBreaker{},
	}
}

func (r *Registry) Get(category string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[category]
	if !ok {
		cb = NewCircuitBreaker(category, r.threshold, r.resetTimeout, r.opts...)
		r.breakers[category] = cb
	}
	return cb
}

func (r *Registry) Execute(category string, fn func() error) error {
	return r.Get(category).Execute(fn)
}

// States snapshots the state of every breaker created so far.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State()
	}
	return out
}
