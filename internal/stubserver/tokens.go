package stubserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookie and RefreshCookie are HttpOnly; application code
	// never reads them. CSRFCookie must stay readable for the
	// double-submit check.
	SessionCookie = "mb_session"
	RefreshCookie = "mb_refresh"
	CSRFCookie    = "csrftoken"

	kindSession = "session"
	kindRefresh = "refresh"
)

type cookieClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	Tenant string `json:"tenant"`
	Kind   string `json:"kind"`
}

func (s *Server) mintToken(kind string, user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := cookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:  user.Email,
		Tenant: user.Tenant.SchemaName,
		Kind:   kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Server) parseToken(raw, wantKind string) (*cookieClaims, error) {
	var claims cookieClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Kind != wantKind {
		return nil, fmt.Errorf("token kind %q, want %q", claims.Kind, wantKind)
	}
	return &claims, nil
}

func (s *Server) setAuthCookies(w http.ResponseWriter, user User, csrf string) error {
	sessionToken, err := s.mintToken(kindSession, user, s.cfg.SessionTTL)
	if err != nil {
		return err
	}
	refreshToken, err := s.mintToken(kindRefresh, user, s.cfg.RefreshTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name: SessionCookie, Value: sessionToken, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
		MaxAge: int(s.cfg.SessionTTL.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name: RefreshCookie, Value: refreshToken, Path: "/auth/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
		MaxAge: int(s.cfg.RefreshTTL.Seconds()),
	})
	if csrf != "" {
		http.SetCookie(w, &http.Cookie{
			Name: CSRFCookie, Value: csrf, Path: "/",
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.cfg.RefreshTTL.Seconds()),
		})
	}
	return nil
}

func clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/auth/", HttpOnly: true, MaxAge: -1})
}
