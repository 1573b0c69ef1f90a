package authflow

import (
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-notes-session/oidclogin"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu      sync.Mutex
	flows   map[string]*oidclogin.Flow
	maxAge  time.Duration
	nowFunc func() time.Time
}

type Option func(*InMemoryRepo)

// WithMaxAge rejects flows created more than d ago. Zero disables the check.
func WithMaxAge(d time.Duration) Option {
	return func(r *InMemoryRepo) {
		r.maxAge = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryRepo creates a new in-memory auth flow repository
func NewInMemoryRepo(options ...Option) *InMemoryRepo {
	r := &InMemoryRepo{
		flows:   make(map[string]*oidclogin.Flow),
		maxAge:  15 * time.Minute,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert stores or updates a flow. Abandoned flows are pruned on the way.
func (r *InMemoryRepo) Upsert(state string, flow *oidclogin.Flow) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, f := range r.flows {
		if r.expired(f) {
			delete(r.flows, k)
		}
	}

	// Create a copy to prevent external modifications
	stored := *flow
	r.flows[state] = &stored
	return nil
}

// Get retrieves a flow by state parameter
func (r *InMemoryRepo) Get(state string) (*oidclogin.Flow, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, ErrInvalidState
	}
	if r.expired(flow) {
		delete(r.flows, state)
		return nil, ErrFlowExpired
	}

	// Return a copy to prevent external modifications
	found := *flow
	return &found, nil
}

// Delete removes a flow
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}

// Len returns the number of flows currently held
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func (r *InMemoryRepo) expired(f *oidclogin.Flow) bool {
	return r.maxAge > 0 && r.nowFunc().Sub(f.CreatedAt) > r.maxAge
}
