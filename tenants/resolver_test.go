package tenants_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maintboard/maintboard-go/internal/config"
	"github.com/maintboard/maintboard-go/storage"
	"github.com/maintboard/maintboard-go/tenants"
)

type testConfig struct {
	config.EnvVars
	config.Client
	config.Capabilities
	dataDir string
}

func (c testConfig) GetAppPrefix() string     { return "mb" }
func (c testConfig) GetDataFolder() string    { return c.dataDir }
func (c testConfig) GetAPIDomain() string     { return "maintboard.app" }
func (c testConfig) GetDefaultTenant() string { return "default" }

// fakeSession implements tenants.SessionTenant.
type fakeSession struct {
	tenant *tenants.Tenant
}

func (f *fakeSession) ActiveTenant() (tenants.Tenant, bool) {
	if f.tenant == nil {
		return tenants.Tenant{}, false
	}
	return *f.tenant, true
}

type resolverFixture struct {
	resolver *tenants.Resolver
	storage  *storage.Store
	session  *fakeSession
	host     string
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	cfg := testConfig{dataDir: t.TempDir()}
	store := storage.New(cfg,
		storage.WithMedium(storage.NewMemoryMedium()),
		storage.WithMarkerPath(filepath.Join(cfg.dataDir, "auth.event")))
	t.Cleanup(func() { _ = store.Close() })

	f := &resolverFixture{storage: store, session: &fakeSession{}}
	f.resolver = tenants.NewResolver(cfg, store,
		tenants.WithSession(f.session),
		tenants.WithHostFunc(func() string { return f.host }))
	return f
}

func TestResolverOverrideWins(t *testing.T) {
	f := newResolverFixture(t)
	f.session.tenant = &tenants.Tenant{SchemaName: "acme", Slug: "acme", Name: "Acme Facilities"}
	f.host = "northwind.maintboard.app"

	f.resolver.SetOverride(&tenants.Tenant{SchemaName: "Pinned-Org", Slug: "pinned", Name: "Pinned"})

	got := f.resolver.Config()
	require.Equal(t, "pinned_org", got.SchemaName, "override schema is normalized")
	require.Equal(t, "pinned", got.Slug)

	f.resolver.SetOverride(nil)
	require.Equal(t, "acme", f.resolver.Config().SchemaName)
}

func TestResolverSessionWinsAndCaches(t *testing.T) {
	f := newResolverFixture(t)
	f.session.tenant = &tenants.Tenant{
		ID:         "t-acme",
		SchemaName: "acme",
		Slug:       "acme",
		Name:       "Acme Facilities",
		Role:       "admin",
		Features:   []string{"workorders"},
	}
	f.host = "northwind.maintboard.app"

	got := f.resolver.Config()
	require.Equal(t, "acme", got.SchemaName, "live session beats the location")

	var record storage.TenantRecord
	require.True(t, f.storage.Get(storage.KeyTenantConfig, &record, storage.WithTenant("acme")))
	require.Equal(t, "Acme Facilities", record.Name)
	require.Equal(t, "admin", record.Role)

	var last storage.LastActiveTenant
	require.True(t, f.storage.Get(storage.KeyLastActiveTenant, &last,
		storage.WithTenant(storage.DefaultTenant)))
	require.Equal(t, "acme", last.SchemaName)
}

func TestResolverHostDerived(t *testing.T) {
	t.Run("cached config preferred", func(t *testing.T) {
		f := newResolverFixture(t)
		f.host = "acme.maintboard.app"
		f.storage.Set(storage.KeyTenantConfig, storage.TenantRecord{
			ID:         "t-acme",
			SchemaName: "acme",
			Slug:       "acme",
			Name:       "Acme Facilities",
			Features:   []string{"workorders"},
		}, storage.WithTenant("acme"))

		got := f.resolver.Config()
		require.Equal(t, "t-acme", got.ID)
		require.Equal(t, []string{"workorders"}, got.Features)
	})

	t.Run("no cache falls back to branding", func(t *testing.T) {
		f := newResolverFixture(t)
		f.host = "acme.maintboard.app"

		got := f.resolver.Config()
		require.Equal(t, "acme", got.SchemaName)
		require.Equal(t, "Acme Facilities", got.Name)
		require.Empty(t, got.ID)
	})
}

func TestResolverLastActiveFallback(t *testing.T) {
	f := newResolverFixture(t)

	// A previous run resolved acme; this cold start has no session and
	// a tenant-free location.
	f.storage.Set(storage.KeyTenantConfig, storage.TenantRecord{
		SchemaName: "acme",
		Slug:       "acme",
		Name:       "Acme Facilities",
		Features:   []string{},
	}, storage.WithTenant("acme"))
	f.storage.Set(storage.KeyLastActiveTenant, storage.LastActiveTenant{SchemaName: "acme"},
		storage.WithTenant(storage.DefaultTenant))

	require.Equal(t, "acme", f.resolver.Config().SchemaName)
}

func TestResolverDefaultFallback(t *testing.T) {
	f := newResolverFixture(t)

	got := f.resolver.Config()
	require.Equal(t, "default", got.SchemaName)
	require.NotEmpty(t, got.Name)
}

func TestResolverBrand(t *testing.T) {
	f := newResolverFixture(t)
	f.session.tenant = &tenants.Tenant{SchemaName: "acme", Slug: "acme"}

	require.Equal(t, "Acme Facilities", f.resolver.Brand().Name)
}
