package coordinator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maintboard/maintboard-go/coordinator"
	"github.com/maintboard/maintboard-go/httpclient"
	"github.com/maintboard/maintboard-go/internal/config"
	apperrors "github.com/maintboard/maintboard-go/internal/errors"
	"github.com/maintboard/maintboard-go/sessions"
	"github.com/maintboard/maintboard-go/storage"
	"github.com/maintboard/maintboard-go/tenants"
)

type testConfig struct {
	config.EnvVars
	config.Client
	config.Capabilities
	dataDir string
}

func (c testConfig) GetAppPrefix() string  { return "mb" }
func (c testConfig) GetDataFolder() string { return c.dataDir }
func (c testConfig) GetAPIDomain() string  { return "maintboard.app" }

var (
	testUser   = sessions.User{ID: "u-1", Email: "tech@acme.example", Name: "Taylor Tech", Role: "technician"}
	testTenant = tenants.Tenant{ID: "t-acme", SchemaName: "acme", Slug: "acme", Name: "Acme Facilities", Features: []string{}}
)

// authBackend is a minimal session backend: the session endpoint
// answers with the configured status, login checks one fixed account.
type authBackend struct {
	mux           *http.ServeMux
	sessionStatus atomic.Int32
	sessionCalls  atomic.Int32
}

func newAuthBackend(sessionStatus int) *authBackend {
	b := &authBackend{mux: http.NewServeMux()}
	b.sessionStatus.Store(int32(sessionStatus))

	payload := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":   testUser,
			"tenant": testTenant,
		})
	}

	b.mux.HandleFunc("GET "+coordinator.SessionPath, func(w http.ResponseWriter, r *http.Request) {
		b.sessionCalls.Add(1)
		status := int(b.sessionStatus.Load())
		if status != http.StatusOK {
			http.Error(w, `{"detail":"no session"}`, status)
			return
		}
		payload(w)
	})
	b.mux.HandleFunc("POST /auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Email != "tech@acme.example" || creds.Password != "password1" {
			http.Error(w, `{"detail":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		payload(w)
	})
	b.mux.HandleFunc("POST /auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return b
}

func (b *authBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

type coordinatorFixture struct {
	coordinator *coordinator.Coordinator
	sessions    *sessions.Store
	storage     *storage.Store
	backend     *authBackend

	mu        sync.Mutex
	redirects []string
}

func (f *coordinatorFixture) redirectedTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.redirects...)
}

func newCoordinatorFixture(t *testing.T, backend *authBackend) *coordinatorFixture {
	t.Helper()

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := testConfig{dataDir: t.TempDir()}
	store := storage.New(cfg,
		storage.WithMedium(storage.NewMemoryMedium()),
		storage.WithMarkerPath(filepath.Join(cfg.dataDir, "auth.event")))
	t.Cleanup(func() { _ = store.Close() })

	sessionStore := sessions.NewStore()
	resolver := tenants.NewResolver(cfg, store, tenants.WithSession(sessionStore))

	client, err := httpclient.New(cfg, resolver, sessionStore, store,
		httpclient.WithBaseURL(server.URL))
	require.NoError(t, err)

	f := &coordinatorFixture{sessions: sessionStore, storage: store, backend: backend}
	coord, err := coordinator.New(cfg, client, sessionStore, store, resolver,
		coordinator.WithRedirect(func(path string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.redirects = append(f.redirects, path)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })

	f.coordinator = coord
	return f
}

func TestEnsureHydratedSuccess(t *testing.T) {
	f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))

	require.NoError(t, f.coordinator.EnsureHydrated(context.Background()))

	snapshot := f.sessions.Snapshot()
	require.True(t, snapshot.IsHydrated)
	require.True(t, snapshot.IsAuthenticated)
	require.Equal(t, "u-1", snapshot.User.ID)
	require.Equal(t, "acme", snapshot.Tenant.SchemaName)

	require.NoError(t, f.coordinator.EnsureHydrated(context.Background()))
	require.EqualValues(t, 1, f.backend.sessionCalls.Load(),
		"a hydrated session must not be checked again")
}

func TestEnsureHydratedUnauthenticated(t *testing.T) {
	f := newCoordinatorFixture(t, newAuthBackend(http.StatusUnauthorized))

	require.NoError(t, f.coordinator.EnsureHydrated(context.Background()),
		"an unauthenticated session check is a valid outcome, not an error")

	snapshot := f.sessions.Snapshot()
	require.True(t, snapshot.IsHydrated)
	require.False(t, snapshot.IsAuthenticated)

	require.NoError(t, f.coordinator.EnsureHydrated(context.Background()))
	require.EqualValues(t, 1, f.backend.sessionCalls.Load())
}

func TestEnsureHydratedServerError(t *testing.T) {
	f := newCoordinatorFixture(t, newAuthBackend(http.StatusBadGateway))

	err := f.coordinator.EnsureHydrated(context.Background())
	require.Error(t, err)

	snapshot := f.sessions.Snapshot()
	require.True(t, snapshot.IsHydrated, "even a failed attempt settles the machine")
	require.False(t, snapshot.IsAuthenticated)
}

func TestAuthSignalTriggersRehydration(t *testing.T) {
	backend := newAuthBackend(http.StatusUnauthorized)
	f := newCoordinatorFixture(t, backend)

	require.NoError(t, f.coordinator.EnsureHydrated(context.Background()))
	require.False(t, f.sessions.Snapshot().IsAuthenticated)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.coordinator.Start(ctx))

	// Another tab logged in: the backend now has a session and the
	// auth-change signal goes out.
	backend.sessionStatus.Store(http.StatusOK)
	f.storage.EmitAuthEvent("login")

	require.Eventually(t, func() bool {
		return f.sessions.Snapshot().IsAuthenticated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMarkerFileTriggersRehydration(t *testing.T) {
	backend := newAuthBackend(http.StatusOK)
	f := newCoordinatorFixture(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.coordinator.Start(ctx))

	// A sibling process rewrites the marker file; only the filesystem
	// carries the signal here.
	marker, err := json.Marshal(storage.AuthEvent{
		TS:     time.Now().UnixMilli(),
		ID:     "01JEXTERNALEVENT0000000000",
		Reason: "login",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.storage.MarkerPath(), marker, 0o644))

	require.Eventually(t, func() bool {
		return f.sessions.Snapshot().IsAuthenticated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogin(t *testing.T) {
	t.Run("success establishes and broadcasts", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusUnauthorized))
		busCh, cancel := f.storage.Bus().Subscribe()
		defer cancel()

		require.NoError(t, f.coordinator.Login(context.Background(), "tech@acme.example", "password1"))

		snapshot := f.sessions.Snapshot()
		require.True(t, snapshot.IsAuthenticated)
		require.Equal(t, "acme", snapshot.Tenant.SchemaName)

		select {
		case ev := <-busCh:
			require.Equal(t, "login", ev.Reason)
		case <-time.After(time.Second):
			t.Fatal("login did not broadcast an auth change")
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusUnauthorized))

		err := f.coordinator.Login(context.Background(), "tech@acme.example", "wrong")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.False(t, f.sessions.Snapshot().IsAuthenticated)
	})
}

func TestLogout(t *testing.T) {
	f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))
	f.sessions.SetSession(testUser, testTenant)
	f.storage.Set(storage.KeyWorkOrderDraft, storage.WorkOrderDraft{Title: "Fix pump"},
		storage.WithTenant("acme"), storage.WithUser("u-1"))
	f.storage.Set(storage.KeyTourProgress, storage.TourProgress{SeenTours: []string{"workorders"}},
		storage.WithTenant("acme"), storage.WithUser("u-1"))

	require.NoError(t, f.coordinator.Logout(context.Background()))

	require.False(t, f.sessions.Snapshot().IsAuthenticated)

	var draft storage.WorkOrderDraft
	require.False(t, f.storage.Get(storage.KeyWorkOrderDraft, &draft,
		storage.WithTenant("acme"), storage.WithUser("u-1")))
	var tour storage.TourProgress
	require.True(t, f.storage.Get(storage.KeyTourProgress, &tour,
		storage.WithTenant("acme"), storage.WithUser("u-1")))
}

func TestGuardLocation(t *testing.T) {
	t.Run("mismatch clears and redirects", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))
		f.sessions.SetSession(testUser, testTenant)
		f.storage.Set(storage.KeyWorkOrderDraft, storage.WorkOrderDraft{Title: "Fix pump"},
			storage.WithTenant("acme"), storage.WithUser("u-1"))
		busCh, cancel := f.storage.Bus().Subscribe()
		defer cancel()

		err := f.coordinator.GuardLocation("beta.maintboard.app", "/dashboard")
		require.ErrorIs(t, err, apperrors.ErrTenantMismatch)

		require.False(t, f.sessions.Snapshot().IsAuthenticated)
		require.Equal(t, []string{coordinator.LoginRoute}, f.redirectedTo())

		var draft storage.WorkOrderDraft
		require.False(t, f.storage.Get(storage.KeyWorkOrderDraft, &draft,
			storage.WithTenant("acme"), storage.WithUser("u-1")))

		select {
		case ev := <-busCh:
			require.Equal(t, "tenant-mismatch", ev.Reason)
		case <-time.After(time.Second):
			t.Fatal("no auth-change broadcast after the mismatch")
		}
	})

	t.Run("public route skips the redirect", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))
		f.sessions.SetSession(testUser, testTenant)

		err := f.coordinator.GuardLocation("beta.maintboard.app", coordinator.LoginRoute)
		require.ErrorIs(t, err, apperrors.ErrTenantMismatch)
		require.Empty(t, f.redirectedTo())
	})

	t.Run("matching tenant passes", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))
		f.sessions.SetSession(testUser, testTenant)

		require.NoError(t, f.coordinator.GuardLocation("acme.maintboard.app", "/dashboard"))
		require.True(t, f.sessions.Snapshot().IsAuthenticated)
	})

	t.Run("tenant-free host passes", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))
		f.sessions.SetSession(testUser, testTenant)

		require.NoError(t, f.coordinator.GuardLocation("localhost:3000", "/dashboard"))
		require.NoError(t, f.coordinator.GuardLocation("app.maintboard.app", "/dashboard"))
	})

	t.Run("no session passes", func(t *testing.T) {
		f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))

		require.NoError(t, f.coordinator.GuardLocation("beta.maintboard.app", "/dashboard"))
	})
}

func TestRouteGate(t *testing.T) {
	f := newCoordinatorFixture(t, newAuthBackend(http.StatusOK))

	t.Run("unhydrated is loading", func(t *testing.T) {
		require.Equal(t, coordinator.GateLoading, f.coordinator.RouteGate("/dashboard"))
	})

	t.Run("hydrating is loading", func(t *testing.T) {
		f.sessions.StartHydration()
		require.Equal(t, coordinator.GateLoading, f.coordinator.RouteGate("/dashboard"))
		f.sessions.FinishHydration()
	})

	t.Run("unauthenticated", func(t *testing.T) {
		f.sessions.ClearSession()
		require.Equal(t, coordinator.GateRedirectToLogin, f.coordinator.RouteGate("/dashboard"))
		require.Equal(t, coordinator.GateRender, f.coordinator.RouteGate(coordinator.LoginRoute))
		require.Equal(t, coordinator.GateRender, f.coordinator.RouteGate("/signup"))
	})

	t.Run("authenticated", func(t *testing.T) {
		f.sessions.SetSession(testUser, testTenant)
		require.Equal(t, coordinator.GateRender, f.coordinator.RouteGate("/dashboard"))
		require.Equal(t, coordinator.GateRedirectHome, f.coordinator.RouteGate(coordinator.LoginRoute))
	})
}

func TestGateString(t *testing.T) {
	require.Equal(t, "loading", coordinator.GateLoading.String())
	require.Equal(t, "redirect-to-login", coordinator.GateRedirectToLogin.String())
	require.Equal(t, "redirect-home", coordinator.GateRedirectHome.String())
	require.Equal(t, "render", coordinator.GateRender.String())
}
