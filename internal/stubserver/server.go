// Package stubserver is a local development backend implementing the
// MaintBoard session wire contract: cookie login, session check,
// refresh rotation, CSRF enforcement, and a few canned business
// endpoints. It exists so the client can be exercised end to end
// without a real deployment; it is not production code.
package stubserver

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/maintboard/maintboard-go/tenants"
)

// Server is the stub backend.
type Server struct {
	cfg        Config
	mux        *http.ServeMux
	users      *UserRepo
	workOrders *workOrderRepo
	jobs       *jobRepo
}

// New creates the stub backend with seeded development data.
func New(cfg Config) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		users:      NewUserRepo(),
		workOrders: newWorkOrderRepo(),
		jobs:       newJobRepo(),
	}
	if err := SeedUsers(s.users); err != nil {
		return nil, err
	}
	s.workOrders.seed()
	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	s.handle("POST /auth/login/", s.LoginHandler)
	s.handle("GET /auth/session/", s.SessionHandler)
	s.handle("POST /auth/token/refresh/", s.RefreshHandler)
	s.handle("POST /auth/logout/", s.LogoutHandler)

	s.handle("GET /api/workorders/", s.ListWorkOrdersHandler)
	s.handle("POST /api/workorders/", s.CreateWorkOrderHandler)
	s.handle("GET /api/workorders/{id}/", s.GetWorkOrderHandler)

	s.handle("POST /api/ai/jobs/", s.SubmitJobHandler)
	s.handle("GET /api/ai/jobs/{id}/", s.JobStatusHandler)
}

func (s *Server) handle(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, ChainMiddleware(handler,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.CSRFMiddleware,
	))
}

// ChainMiddleware applies middleware in reverse order around a route.
func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("stub request")
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("stub handler panicked")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// CSRFMiddleware enforces the double-submit check on state-mutating
// API calls. Auth endpoints are exempt: login runs before any CSRF
// cookie exists and refresh is protected by the HttpOnly cookie path.
func (s *Server) CSRFMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isMutatingMethod(r.Method) || strings.HasPrefix(r.URL.Path, "/auth/") {
			next(w, r)
			return
		}
		cookie, err := r.Cookie(CSRFCookie)
		if err != nil || cookie.Value == "" || r.Header.Get("X-CSRFToken") != cookie.Value {
			http.Error(w, `{"detail":"CSRF verification failed"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func isMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// requestTenant resolves the tenant a request addresses: the
// X-Tenant header when present, otherwise the host subdomain.
func requestTenant(r *http.Request) string {
	if header := r.Header.Get("X-Tenant"); header != "" {
		return tenants.NormalizeSchemaName(header)
	}
	host := r.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		return tenants.NormalizeSchemaName(host[:i])
	}
	return ""
}
