package stubserver

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/maintboard/maintboard-go/sessions"
	"github.com/maintboard/maintboard-go/tenants"
)

type sessionResponse struct {
	User   sessions.User  `json:"user"`
	Tenant tenants.Tenant `json:"tenant"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// LoginHandler checks credentials against the tenant's user table and
// establishes the cookie session.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantSchema := requestTenant(r)
	user, ok := s.users.GetByEmail(tenantSchema, body.Email)
	if !ok || !CheckPasswordHash(body.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := s.setAuthCookies(w, user, uuid.New().String()); err != nil {
		log.Error().Err(err).Msg("failed to mint session cookies")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user.Session(), Tenant: user.Tenant})
}

// SessionHandler is the hydration endpoint: it reports the identity
// behind the session cookie.
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user.Session(), Tenant: user.Tenant})
}

// RefreshHandler rotates the session cookie off the refresh cookie.
// With refresh disabled it answers 404, mimicking a deployment
// without refresh capability.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DisableRefresh {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no refresh cookie")
		return
	}
	claims, err := s.parseToken(cookie.Value, kindRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, ok := s.users.GetByEmail(claims.Tenant, claims.Email)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}

	if err := s.setAuthCookies(w, user, ""); err != nil {
		log.Error().Err(err).Msg("failed to rotate session cookies")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "refreshed"})
}

// LogoutHandler drops the cookie session.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "logged out"})
}

// sessionUser resolves the authenticated user of a request, enforcing
// that the session's tenant matches the tenant the request addresses.
func (s *Server) sessionUser(r *http.Request) (User, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return User{}, false
	}
	claims, err := s.parseToken(cookie.Value, kindSession)
	if err != nil {
		return User{}, false
	}
	if requested := requestTenant(r); requested != "" && requested != claims.Tenant {
		return User{}, false
	}
	return s.users.GetByEmail(claims.Tenant, claims.Email)
}
