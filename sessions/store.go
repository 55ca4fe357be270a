// Package sessions holds the in-memory reactive session state
// machine. The store owns SessionState exclusively; every mutation
// goes through one of the defined transitions.
package sessions

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maintboard/maintboard-go/internal/errors"
	"github.com/maintboard/maintboard-go/tenants"
)

// User is the authenticated identity of the active session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// State is a snapshot of the session machine. The states are:
//
//	Unhydrated:               !IsHydrated && !IsHydrating
//	Hydrating:                IsHydrating
//	Hydrated-Authenticated:   IsHydrated && IsAuthenticated
//	Hydrated-Unauthenticated: IsHydrated && !IsAuthenticated
type State struct {
	User            *User
	Tenant          *tenants.Tenant
	IsAuthenticated bool
	IsHydrated      bool
	IsHydrating     bool
	RoleOverride    string
}

// Store is the session state machine. Snapshots handed out are value
// copies; only transitions mutate the owned state.
type Store struct {
	mu                sync.RWMutex
	state             State
	subs              map[int]chan State
	next              int
	allowRoleOverride bool
	logger            zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRoleOverride enables the local role simulation escape hatch.
// Callers gate this on config.RoleOverrideEnabled, which is never
// true outside DEV builds.
func WithRoleOverride(enabled bool) StoreOption {
	return func(s *Store) { s.allowRoleOverride = enabled }
}

// WithLogger replaces the package logger.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an unhydrated session store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		subs:   make(map[int]chan State),
		logger: log.With().Str("component", "sessions").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyState()
}

// StartHydration moves any non-hydrating state to Hydrating. Re-entry
// while already hydrating is a no-op; the return value reports
// whether this call won the transition.
func (s *Store) StartHydration() bool {
	s.mu.Lock()
	if s.state.IsHydrating {
		s.mu.Unlock()
		return false
	}
	s.state.IsHydrating = true
	s.mu.Unlock()
	s.notify()
	return true
}

// SetSession establishes the authenticated identities and lands in
// Hydrated-Authenticated.
func (s *Store) SetSession(user User, tenant tenants.Tenant) {
	tenant.SchemaName = tenants.NormalizeSchemaName(tenant.SchemaName)

	s.mu.Lock()
	s.state.User = &user
	s.state.Tenant = &tenant
	s.state.IsAuthenticated = true
	s.state.IsHydrated = true
	s.state.IsHydrating = false
	s.mu.Unlock()

	s.logger.Debug().Str("user", user.ID).Str("tenant", tenant.SchemaName).Msg("session established")
	s.notify()
}

// ClearSession wipes the identities and role override and lands in
// Hydrated-Unauthenticated.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.state.User = nil
	s.state.Tenant = nil
	s.state.IsAuthenticated = false
	s.state.RoleOverride = ""
	s.state.IsHydrated = true
	s.state.IsHydrating = false
	s.mu.Unlock()

	s.logger.Debug().Msg("session cleared")
	s.notify()
}

// FinishHydration unconditionally clears the hydrating flag and marks
// the machine hydrated. It runs even when a hydration attempt failed,
// so the machine can never stay stuck in Hydrating.
func (s *Store) FinishHydration() {
	s.mu.Lock()
	s.state.IsHydrating = false
	s.state.IsHydrated = true
	s.mu.Unlock()
	s.notify()
}

// SetRoleOverride shadows the session role for local role simulation
// without touching the authenticated identity.
func (s *Store) SetRoleOverride(role string) error {
	if !s.allowRoleOverride {
		return errors.ErrUnsupported
	}
	s.mu.Lock()
	s.state.RoleOverride = role
	s.mu.Unlock()
	s.notify()
	return nil
}

// EffectiveRole returns the override when set, otherwise the
// session-derived role.
func (s *Store) EffectiveRole() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.RoleOverride != "" {
		return s.state.RoleOverride
	}
	if s.state.User != nil {
		return s.state.User.Role
	}
	return ""
}

// ActiveTenant implements tenants.SessionTenant.
func (s *Store) ActiveTenant() (tenants.Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.IsAuthenticated || s.state.Tenant == nil {
		return tenants.Tenant{}, false
	}
	return *s.state.Tenant, true
}

// Subscribe registers for state snapshots after each transition. A
// subscriber that does not drain its channel misses snapshots rather
// than blocking transitions.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan State, 8)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.mu.RLock()
	snapshot := s.copyState()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	s.mu.RUnlock()
}

// copyState deep-copies the identities so subscribers cannot mutate
// the owned state. Callers hold at least the read lock.
func (s *Store) copyState() State {
	snapshot := s.state
	if s.state.User != nil {
		user := *s.state.User
		snapshot.User = &user
	}
	if s.state.Tenant != nil {
		tenant := *s.state.Tenant
		snapshot.Tenant = &tenant
	}
	return snapshot
}
