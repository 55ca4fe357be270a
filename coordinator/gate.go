package coordinator

import (
	"github.com/pkg/errors"

	apperrors "github.com/maintboard/maintboard-go/internal/errors"
	"github.com/maintboard/maintboard-go/tenants"
)

// Gate is the route-gating decision for the current session state.
type Gate int

const (
	// GateLoading covers pending hydration; protected content never
	// renders before the session state is known.
	GateLoading Gate = iota
	GateRedirectToLogin
	GateRedirectHome
	GateRender
)

func (g Gate) String() string {
	switch g {
	case GateLoading:
		return "loading"
	case GateRedirectToLogin:
		return "redirect-to-login"
	case GateRedirectHome:
		return "redirect-home"
	case GateRender:
		return "render"
	}
	return "unknown"
}

// LoginRoute is where unauthenticated users are sent.
const LoginRoute = "/login"

var publicRoutes = map[string]bool{
	LoginRoute:         true,
	"/signup":          true,
	"/forgot-password": true,
	"/reset-password":  true,
}

// IsPublicRoute reports whether a route renders without a session.
func IsPublicRoute(route string) bool {
	return publicRoutes[route]
}

// RouteGate decides what to do with a route given the current session
// state.
func (c *Coordinator) RouteGate(route string) Gate {
	snapshot := c.sessions.Snapshot()

	if !snapshot.IsHydrated || snapshot.IsHydrating {
		return GateLoading
	}
	if snapshot.IsAuthenticated && route == LoginRoute {
		return GateRedirectHome
	}
	if !snapshot.IsAuthenticated && !IsPublicRoute(route) {
		return GateRedirectToLogin
	}
	return GateRender
}

// GuardLocation enforces the tenant boundary between the network
// location and the active session. A mismatch is a security boundary
// violation: the session tenant's persisted state is purged, the
// session cleared, the auth change broadcast, and navigation sent to
// the login route unless the current route is public.
func (c *Coordinator) GuardLocation(host, route string) error {
	slug := tenants.SlugFromHost(host, c.cfg.GetAPIDomain())
	if slug == "" {
		return nil
	}

	sessionTenant, ok := c.sessions.ActiveTenant()
	if !ok {
		return nil
	}
	if tenants.NormalizeSchemaName(slug) == sessionTenant.SchemaName {
		return nil
	}

	c.logger.Warn().
		Str("location_tenant", slug).
		Str("session_tenant", sessionTenant.SchemaName).
		Msg("tenant mismatch, clearing session")

	c.storage.PurgeTenant(sessionTenant.SchemaName)
	c.sessions.ClearSession()
	c.setBlocked(false)
	c.storage.EmitAuthEvent("tenant-mismatch")

	if !IsPublicRoute(route) {
		c.redirect(LoginRoute)
	}
	return errors.Wrapf(apperrors.ErrTenantMismatch, "location %q vs session %q", slug, sessionTenant.SchemaName)
}
