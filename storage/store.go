// Package storage implements the namespaced, schema-validated
// key/value store behind the session layer. Every value is validated
// against its declared schema on both read and write; corruption is
// healed silently by deleting the offending entry.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maintboard/maintboard-go/internal/config"
	"github.com/maintboard/maintboard-go/internal/events"
	"github.com/maintboard/maintboard-go/internal/metrics"
)

const (
	// DefaultTenant is the namespace used before any tenant is known.
	DefaultTenant = "default"
	// DefaultUser is the namespace used before any user is known.
	DefaultUser = "anonymous"
)

// Store is the scoped client-state store. Physical keys follow
// <prefix>:<tenant>[:<user>]:<logicalKey>; the tenant and user
// segments come from the bound scope funcs unless overridden.
type Store struct {
	prefix      string
	medium      Medium
	fallback    *MemoryMedium
	demo        *MemoryMedium
	demoEnabled bool
	markerPath  string

	tenantFn func() string
	userFn   func() string

	bus     *events.Bus
	clock   clockwork.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMedium replaces the persistent medium (tests use memory).
func WithMedium(medium Medium) Option {
	return func(s *Store) { s.medium = medium }
}

// WithBus attaches the local auth-change bus.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithClock replaces the wall clock (tests).
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMetrics attaches shared collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger replaces the package logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMarkerPath overrides the cross-tab marker file location.
func WithMarkerPath(path string) Option {
	return func(s *Store) { s.markerPath = path }
}

// New creates a Store. Without WithMedium it opens the SQLite
// client-state database under the configured data folder; if that
// fails the store starts degraded on the in-memory medium.
func New(cfg config.Config, opts ...Option) *Store {
	s := &Store{
		prefix:      cfg.GetAppPrefix(),
		fallback:    NewMemoryMedium(),
		demo:        NewMemoryMedium(),
		demoEnabled: cfg.DemoModeEnabled(),
		markerPath:  filepath.Join(cfg.GetDataFolder(), "auth.event"),
		tenantFn:    func() string { return "" },
		userFn:      func() string { return "" },
		bus:         events.NewBus(),
		clock:       clockwork.NewRealClock(),
		metrics:     metrics.NewNop(),
		logger:      log.With().Str("component", "storage").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.medium == nil {
		medium, err := OpenSQLite(filepath.Join(cfg.GetDataFolder(), "client-state.db"))
		if err != nil {
			s.logger.Warn().Err(err).Msg("persistent medium unavailable, degrading to memory")
			s.medium = s.fallback
		} else {
			s.medium = medium
		}
	}
	return s
}

// BindScope wires the active tenant/user providers. Empty results
// fall back to the default namespaces.
func (s *Store) BindScope(tenant, user func() string) {
	if tenant != nil {
		s.tenantFn = tenant
	}
	if user != nil {
		s.userFn = user
	}
}

// Bus exposes the auth-change bus for subscribers.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

// MarkerPath is the marker file sibling processes watch.
func (s *Store) MarkerPath() string {
	return s.markerPath
}

// ScopeOption overrides a namespace segment for one call.
type ScopeOption func(*scope)

type scope struct {
	tenant string
	user   string
}

// WithTenant pins the tenant segment for this call.
func WithTenant(tenant string) ScopeOption {
	return func(sc *scope) { sc.tenant = tenant }
}

// WithUser pins the user segment for this call.
func WithUser(user string) ScopeOption {
	return func(sc *scope) { sc.user = user }
}

func (s *Store) resolveScope(opts []ScopeOption) scope {
	sc := scope{tenant: s.tenantFn(), user: s.userFn()}
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.tenant == "" {
		sc.tenant = DefaultTenant
	}
	if sc.user == "" {
		sc.user = DefaultUser
	}
	return sc
}

func (s *Store) physicalKey(key Key, def Definition, sc scope) string {
	if def.Scope == ScopeTenantUser {
		return s.prefix + ":" + sc.tenant + ":" + sc.user + ":" + string(key)
	}
	return s.prefix + ":" + sc.tenant + ":" + string(key)
}

// Get reads a value into out (a pointer of the key's payload type).
// It reports false when the entry is absent, fails validation, or the
// key is unknown; validation failures also delete the stored entry so
// corruption never surfaces twice.
func (s *Store) Get(key Key, out any, opts ...ScopeOption) bool {
	def, ok := DefinitionFor(key)
	if !ok {
		s.logger.Error().Str("key", string(key)).Msg("read of unregistered storage key")
		return false
	}
	physical := s.physicalKey(key, def, s.resolveScope(opts))
	medium := s.mediumFor(def, physical)

	raw, found, err := medium.Get(physical)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", physical).Msg("medium read failed, trying memory fallback")
		raw, found, _ = s.fallback.Get(physical)
	}
	if !found {
		return false
	}

	if err := s.decodeValid(def, raw); err != nil {
		s.logger.Debug().Err(err).Str("key", physical).Msg("self-healing invalid entry")
		s.metrics.StorageSelfHeals.Inc()
		s.deleteEverywhere(physical)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Debug().Err(err).Str("key", physical).Msg("self-healing undecodable entry")
		s.metrics.StorageSelfHeals.Inc()
		s.deleteEverywhere(physical)
		return false
	}
	return true
}

// Set validates and persists a value. Invalid values are dropped and
// logged; Set never fails from the caller's point of view.
func (s *Store) Set(key Key, value any, opts ...ScopeOption) {
	def, ok := DefinitionFor(key)
	if !ok {
		s.logger.Error().Str("key", string(key)).Msg("write to unregistered storage key")
		return
	}
	raw, err := json.Marshal(value)
	if err == nil {
		err = s.decodeValid(def, raw)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", string(key)).Msg("dropping write that failed schema validation")
		s.metrics.DroppedWrites.Inc()
		return
	}

	physical := s.physicalKey(key, def, s.resolveScope(opts))
	medium := s.mediumFor(def, physical)
	if err := medium.Set(physical, raw); err != nil {
		s.logger.Warn().Err(err).Str("key", physical).Msg("medium write failed, falling back to memory")
		_ = s.fallback.Set(physical, raw)
	}
}

// Remove deletes a single entry.
func (s *Store) Remove(key Key, opts ...ScopeOption) {
	def, ok := DefinitionFor(key)
	if !ok {
		return
	}
	s.deleteEverywhere(s.physicalKey(key, def, s.resolveScope(opts)))
}

// ClearScope removes every entry under a tenant namespace, or under a
// tenant/user namespace when a user is given. Nothing outside the
// namespace is touched.
func (s *Store) ClearScope(tenant string, user ...string) {
	prefix := s.prefix + ":" + tenant + ":"
	if len(user) > 0 && user[0] != "" {
		prefix += user[0] + ":"
	}
	for _, physical := range s.keysEverywhere(prefix) {
		s.deleteEverywhere(physical)
	}
}

// PurgeTenant removes a tenant's persisted state except entries whose
// key is declared keep-on-purge (onboarding and tour progress), so a
// forced logout does not replay first-run flows.
func (s *Store) PurgeTenant(tenant string) {
	prefix := s.prefix + ":" + tenant + ":"
	for _, physical := range s.keysEverywhere(prefix) {
		logical := physical[strings.LastIndex(physical, ":")+1:]
		if def, ok := DefinitionFor(Key(logical)); ok && def.KeepOnPurge {
			continue
		}
		s.deleteEverywhere(physical)
	}
}

// EmitAuthEvent rewrites the cross-tab marker, touches the marker
// file, and publishes on the local bus. Sibling processes observe the
// file change; in-process subscribers get the bus event.
func (s *Store) EmitAuthEvent(reason string) {
	ev := AuthEvent{
		TS:     s.clock.Now().UnixMilli(),
		ID:     ulid.Make().String(),
		Reason: reason,
	}
	s.Set(KeyAuthEvent, ev, WithTenant(DefaultTenant))

	raw, err := json.Marshal(ev)
	if err == nil {
		if err := os.WriteFile(s.markerPath, raw, 0o644); err != nil {
			s.logger.Warn().Err(err).Str("path", s.markerPath).Msg("failed to touch auth event marker")
		}
	}
	s.bus.Publish(events.AuthChange{ID: ev.ID, At: s.clock.Now(), Reason: reason})
}

// Close releases the persistent medium.
func (s *Store) Close() error {
	return s.medium.Close()
}

// mediumFor redirects demo-only keys to process memory when demo mode
// is off, purging any persisted leftover on the way.
func (s *Store) mediumFor(def Definition, physical string) Medium {
	if def.DemoOnly && !s.demoEnabled {
		if err := s.medium.Delete(physical); err != nil {
			s.logger.Debug().Err(err).Str("key", physical).Msg("failed to purge persisted demo entry")
		}
		_ = s.fallback.Delete(physical)
		return s.demo
	}
	return s.medium
}

func (s *Store) decodeValid(def Definition, raw []byte) error {
	target := def.New()
	if err := json.Unmarshal(raw, target); err != nil {
		return err
	}
	return def.Validate(target)
}

func (s *Store) deleteEverywhere(physical string) {
	if err := s.medium.Delete(physical); err != nil {
		s.logger.Debug().Err(err).Str("key", physical).Msg("medium delete failed")
	}
	_ = s.fallback.Delete(physical)
	_ = s.demo.Delete(physical)
}

func (s *Store) keysEverywhere(prefix string) []string {
	seen := make(map[string]bool)
	ordered := make([]string, 0)
	add := func(keys []string) {
		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				ordered = append(ordered, key)
			}
		}
	}
	keys, err := s.medium.Keys(prefix)
	if err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("medium key scan failed")
	}
	add(keys)
	fallbackKeys, _ := s.fallback.Keys(prefix)
	add(fallbackKeys)
	demoKeys, _ := s.demo.Keys(prefix)
	add(demoKeys)
	return ordered
}
