package tenants

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maintboard/maintboard-go/internal/config"
	"github.com/maintboard/maintboard-go/storage"
)

// SessionTenant exposes the tenant of an established session. It is
// implemented by sessions.Store; the indirection keeps this package
// free of a dependency on the session state machine.
type SessionTenant interface {
	ActiveTenant() (Tenant, bool)
}

// Resolver resolves the active tenant identity. Resolution never
// fails: after walking the priority chain it falls back to the
// environment default tenant.
//
// Priority: explicit override > authenticated session tenant >
// location-derived slug > previously persisted config > default.
type Resolver struct {
	cfg     config.Config
	storage *storage.Store
	session SessionTenant
	hostFn  func() string
	logger  zerolog.Logger

	mu       sync.RWMutex
	override *Tenant
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSession wires the live session as a resolution source.
func WithSession(session SessionTenant) ResolverOption {
	return func(r *Resolver) { r.session = session }
}

// WithHostFunc provides the current network location host, the analog
// of window.location for this client.
func WithHostFunc(hostFn func() string) ResolverOption {
	return func(r *Resolver) { r.hostFn = hostFn }
}

// WithLogger replaces the package logger.
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver backed by the scoped store as its
// persistence cache.
func NewResolver(cfg config.Config, store *storage.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cfg:     cfg,
		storage: store,
		hostFn:  func() string { return "" },
		logger:  log.With().Str("component", "tenants").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetOverride pins the resolved tenant, winning over every other
// source. Passing nil removes the pin.
func (r *Resolver) SetOverride(tenant *Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenant != nil {
		normalized := *tenant
		normalized.SchemaName = NormalizeSchemaName(normalized.SchemaName)
		r.override = &normalized
		return
	}
	r.override = nil
}

// Config resolves the active tenant. The result is never zero.
func (r *Resolver) Config() Tenant {
	r.mu.RLock()
	override := r.override
	r.mu.RUnlock()
	if override != nil {
		return *override
	}

	if r.session != nil {
		if tenant, ok := r.session.ActiveTenant(); ok {
			r.cache(tenant)
			return tenant
		}
	}

	if slug := SlugFromHost(r.hostFn(), r.cfg.GetAPIDomain()); slug != "" {
		schema := NormalizeSchemaName(slug)
		if cached, ok := r.cached(schema); ok {
			return cached
		}
		return Tenant{
			SchemaName: schema,
			Slug:       slug,
			Name:       BrandForSlug(slug).Name,
			Features:   []string{},
		}
	}

	if last, ok := r.lastActive(); ok {
		if cached, ok := r.cached(last); ok {
			return cached
		}
	}

	fallback := NormalizeSchemaName(r.cfg.GetDefaultTenant())
	return Tenant{
		SchemaName: fallback,
		Slug:       fallback,
		Name:       defaultBrand.Name,
		Features:   []string{},
	}
}

// Brand resolves branding for the active tenant.
func (r *Resolver) Brand() Brand {
	return BrandForSlug(r.Config().Slug)
}

// cache persists a live-session resolution under the tenant's own
// namespace plus a last-active pointer under the default namespace.
func (r *Resolver) cache(tenant Tenant) {
	record := storage.TenantRecord{
		ID:         tenant.ID,
		SchemaName: tenant.SchemaName,
		Slug:       tenant.Slug,
		Name:       tenant.Name,
		Role:       tenant.Role,
		Features:   tenant.Features,
	}
	if record.Features == nil {
		record.Features = []string{}
	}
	r.storage.Set(storage.KeyTenantConfig, record, storage.WithTenant(tenant.SchemaName))
	r.storage.Set(storage.KeyLastActiveTenant,
		storage.LastActiveTenant{SchemaName: tenant.SchemaName},
		storage.WithTenant(storage.DefaultTenant))
}

func (r *Resolver) cached(schema string) (Tenant, bool) {
	var record storage.TenantRecord
	if !r.storage.Get(storage.KeyTenantConfig, &record, storage.WithTenant(schema)) {
		return Tenant{}, false
	}
	return Tenant{
		ID:         record.ID,
		SchemaName: record.SchemaName,
		Slug:       record.Slug,
		Name:       record.Name,
		Role:       record.Role,
		Features:   record.Features,
	}, true
}

func (r *Resolver) lastActive() (string, bool) {
	var last storage.LastActiveTenant
	if !r.storage.Get(storage.KeyLastActiveTenant, &last, storage.WithTenant(storage.DefaultTenant)) {
		return "", false
	}
	return last.SchemaName, true
}
