package session

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the live Stores of a process keyed by session id.
type Registry struct {
	mu      sync.RWMutex
	stores  map[string]*Store
	gateway Gateway
	opts    []Option
	hooks   []func(*Store)
}

// NewRegistry creates a Registry. opts are applied to every Store it creates
// or resumes; gateway is installed on each of them.
func NewRegistry(gateway Gateway, opts ...Option) *Registry {
	if gateway != nil {
		opts = append([]Option{WithGateway(gateway)}, opts...)
	}
	return &Registry{
		stores:  make(map[string]*Store),
		gateway: gateway,
		opts:    opts,
	}
}

// OnStore registers fn to run for every Store the registry creates or
// resumes, before the Store becomes visible to Get.
func (r *Registry) OnStore(fn func(*Store)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// register publishes store and returns the Store it replaced, if any.
func (r *Registry) register(store *Store) *Store {
	r.mu.RLock()
	hooks := slices.Clone(r.hooks)
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(store)
	}
	r.mu.Lock()
	prev := r.stores[store.ID()]
	r.stores[store.ID()] = store
	r.mu.Unlock()
	return prev
}

// Create validates checkpoints and starts a new session.
func (r *Registry) Create(ctx context.Context, featureName string, checkpoints []Checkpoint, opts ...Option) (*Store, error) {
	queue, err := NewQueue(checkpoints)
	if err != nil {
		return nil, err
	}
	store, err := New(ctx, featureName, queue, append(slices.Clone(r.opts), opts...)...)
	if err != nil {
		return nil, err
	}
	r.register(store)
	return store, nil
}

// Get returns the live Store for id.
func (r *Registry) Get(id string) (*Store, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("get", "", ErrEmptySessionID)
	}
	r.mu.RLock()
	store, ok := r.stores[id]
	r.mu.RUnlock()
	if !ok {
		return nil, NotFoundError(id)
	}
	return store, nil
}

// Resume loads id from the gateway and replaces any live Store with the
// rebuilt one. The replaced Store is ended: later operations on it fail with
// an InvalidStateError and its in-flight hand-offs are abandoned. Observers
// of the replaced Store are not carried over.
func (r *Registry) Resume(ctx context.Context, id string, opts ...Option) (*Store, error) {
	store, err := Resume(ctx, r.gateway, id, append(slices.Clone(r.opts), opts...)...)
	if err != nil {
		return nil, err
	}
	if prev := r.register(store); prev != nil && prev != store {
		retire(ctx, prev)
	}
	return store, nil
}

// retire ends a replaced Store without telling its observers: the session
// lives on in its successor.
func retire(ctx context.Context, s *Store) {
	if s.Status() == StatusEnded {
		return
	}
	s.obsMu.Lock()
	clear(s.observers)
	s.obsMu.Unlock()
	if _, err := s.EndSession(ctx); err != nil && !IsInvalidState(err) {
		s.logger.Error(ctx, "retiring replaced session failed", err, zap.String("session_id", s.ID()))
	}
}

// List returns a projection of every live session, oldest first.
func (r *Registry) List() []Projection {
	r.mu.RLock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.RUnlock()

	out := make([]Projection, 0, len(stores))
	for _, s := range stores {
		out = append(out, s.Projection())
	}
	slices.SortFunc(out, func(a, b Projection) int {
		if c := a.Session.CreatedAt.Compare(b.Session.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Session.ID, b.Session.ID)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// CountByStatus returns how many live sessions are in each status.
func (r *Registry) CountByStatus() map[Status]int {
	r.mu.RLock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.RUnlock()

	counts := make(map[Status]int, 5)
	for _, s := range stores {
		counts[s.Status()]++
	}
	return counts
}
