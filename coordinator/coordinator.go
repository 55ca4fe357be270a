// Package coordinator drives the session lifecycle: startup
// hydration, cross-tab convergence, the tenant-mismatch guard, and
// route gating. One coordinator runs per client process.
package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maintboard/maintboard-go/httpclient"
	"github.com/maintboard/maintboard-go/internal/config"
	apperrors "github.com/maintboard/maintboard-go/internal/errors"
	"github.com/maintboard/maintboard-go/internal/metrics"
	"github.com/maintboard/maintboard-go/sessions"
	"github.com/maintboard/maintboard-go/storage"
	"github.com/maintboard/maintboard-go/tenants"
)

// SessionPath is the hydration endpoint.
const SessionPath = "/auth/session/"

const (
	loginPath  = "/auth/login/"
	logoutPath = "/auth/logout/"
)

// sessionPayload is the wire form of an established session.
type sessionPayload struct {
	User   sessions.User  `json:"user"`
	Tenant tenants.Tenant `json:"tenant"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Coordinator owns hydration and the signals that retrigger it.
type Coordinator struct {
	cfg      config.Config
	client   *httpclient.Client
	sessions *sessions.Store
	storage  *storage.Store
	resolver *tenants.Resolver
	redirect func(path string)
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu          sync.Mutex
	blocked     bool
	lastEventID string

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRedirect wires the navigation callback used by the mismatch
// guard. Without it mismatches still clear state but cannot navigate.
func WithRedirect(redirect func(path string)) CoordinatorOption {
	return func(c *Coordinator) { c.redirect = redirect }
}

// WithMetrics attaches shared collectors.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger replaces the package logger.
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a Coordinator.
func New(cfg config.Config, client *httpclient.Client, sessionStore *sessions.Store, store *storage.Store, resolver *tenants.Resolver, opts ...CoordinatorOption) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("[coordinator.New] http client is required")
	}
	if sessionStore == nil {
		return nil, errors.New("[coordinator.New] session store is required")
	}
	if store == nil {
		return nil, errors.New("[coordinator.New] scoped storage is required")
	}
	if resolver == nil {
		return nil, errors.New("[coordinator.New] tenant resolver is required")
	}

	c := &Coordinator{
		cfg:      cfg,
		client:   client,
		sessions: sessionStore,
		storage:  store,
		resolver: resolver,
		redirect: func(string) {},
		metrics:  metrics.NewNop(),
		logger:   log.With().Str("component", "coordinator").Logger(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EnsureHydrated performs at most one hydration pass. It is a no-op
// when the session is already hydrated or hydrating, or when a prior
// attempt was blocked by an unauthenticated/not-found session check;
// the blocked flag resets only on an auth-change signal.
func (c *Coordinator) EnsureHydrated(ctx context.Context) error {
	snapshot := c.sessions.Snapshot()
	if snapshot.IsHydrated || snapshot.IsHydrating {
		return nil
	}

	c.mu.Lock()
	blocked := c.blocked
	c.mu.Unlock()
	if blocked {
		return nil
	}

	return c.hydrate(ctx)
}

// hydrate runs one session check. FinishHydration is deferred so a
// failed attempt still leaves the machine hydrated, never stuck.
func (c *Coordinator) hydrate(ctx context.Context) error {
	if !c.sessions.StartHydration() {
		return nil
	}
	defer c.sessions.FinishHydration()

	var payload sessionPayload
	err := c.client.Get(ctx, SessionPath, &payload)
	if err == nil {
		c.metrics.Hydrations.WithLabelValues("success").Inc()
		c.sessions.SetSession(payload.User, payload.Tenant)
		c.setBlocked(false)
		// Re-resolving here caches the live tenant config.
		c.resolver.Config()
		return nil
	}

	if httpclient.IsStatus(err, http.StatusUnauthorized) || httpclient.IsStatus(err, http.StatusNotFound) {
		// The deployment has no session for us. Do not retry until an
		// explicit auth-change signal arrives.
		c.metrics.Hydrations.WithLabelValues("unauthenticated").Inc()
		c.sessions.ClearSession()
		c.setBlocked(true)
		return nil
	}

	c.metrics.Hydrations.WithLabelValues("error").Inc()
	return errors.Wrap(err, "[Coordinator.hydrate] session check")
}

// Start subscribes to the local auth bus and to the storage layer's
// marker file; either signal resets the blocked flag and triggers a
// fresh hydration attempt. Call Close to stop.
func (c *Coordinator) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "[Coordinator.Start] fsnotify watcher")
	}
	// Watch the directory: editors and sibling processes replace the
	// marker file, which drops a watch placed on the file itself.
	markerDir := filepath.Dir(c.storage.MarkerPath())
	if err := watcher.Add(markerDir); err != nil {
		_ = watcher.Close()
		return errors.Wrapf(err, "[Coordinator.Start] watching %s", markerDir)
	}
	c.watcher = watcher

	go c.loop(ctx)
	return nil
}

func (c *Coordinator) loop(ctx context.Context) {
	busCh, cancel := c.storage.Bus().Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case ev, ok := <-busCh:
			if !ok {
				return
			}
			c.onAuthSignal(ctx, ev.ID, ev.Reason)

		case fsEvent, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if fsEvent.Name != c.storage.MarkerPath() {
				continue
			}
			if !fsEvent.Has(fsnotify.Write) && !fsEvent.Has(fsnotify.Create) {
				continue
			}
			if ev, ok := c.readMarker(); ok {
				c.onAuthSignal(ctx, ev.ID, "external")
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn().Err(err).Msg("marker watch error")
		}
	}
}

// onAuthSignal handles one auth-change signal. Signals are deduped by
// event ID: the in-process bus and the marker file both report events
// emitted by this process.
func (c *Coordinator) onAuthSignal(ctx context.Context, eventID, reason string) {
	c.mu.Lock()
	if eventID != "" && eventID == c.lastEventID {
		c.mu.Unlock()
		return
	}
	c.lastEventID = eventID
	c.blocked = false
	c.mu.Unlock()

	c.logger.Debug().Str("reason", reason).Msg("auth change signal, re-hydrating")
	if err := c.hydrate(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("re-hydration failed")
	}
}

func (c *Coordinator) readMarker() (storage.AuthEvent, bool) {
	raw, err := os.ReadFile(c.storage.MarkerPath())
	if err != nil {
		return storage.AuthEvent{}, false
	}
	var ev storage.AuthEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return storage.AuthEvent{}, false
	}
	return ev, true
}

func (c *Coordinator) setBlocked(blocked bool) {
	c.mu.Lock()
	c.blocked = blocked
	c.mu.Unlock()
}

// Close stops the signal loop and releases the watcher.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.watcher != nil {
			err = c.watcher.Close()
		}
	})
	return err
}

// Login establishes a session with the backend and broadcasts the
// auth change so sibling processes pick it up.
func (c *Coordinator) Login(ctx context.Context, email, password string) error {
	var payload sessionPayload
	err := c.client.Post(ctx, loginPath, credentials{Email: email, Password: password}, &payload)
	if err != nil {
		if httpclient.IsStatus(err, http.StatusUnauthorized) {
			return errors.Wrap(apperrors.ErrInvalidCredentials, "[Coordinator.Login]")
		}
		return errors.Wrap(err, "[Coordinator.Login]")
	}

	c.sessions.SetSession(payload.User, payload.Tenant)
	c.setBlocked(false)
	c.resolver.Config()
	c.storage.EmitAuthEvent("login")
	return nil
}

// Logout ends the session locally even when the backend call fails;
// tenant-scoped state is purged (onboarding and tour progress kept).
func (c *Coordinator) Logout(ctx context.Context) error {
	err := c.client.Post(ctx, logoutPath, nil, nil)

	schema := ""
	if tenant, ok := c.sessions.ActiveTenant(); ok {
		schema = tenant.SchemaName
	}
	c.sessions.ClearSession()
	if schema != "" {
		c.storage.PurgeTenant(schema)
	}
	c.storage.EmitAuthEvent("logout")

	if err != nil && !httpclient.IsStatus(err, http.StatusUnauthorized) {
		return errors.Wrap(err, "[Coordinator.Logout]")
	}
	return nil
}
