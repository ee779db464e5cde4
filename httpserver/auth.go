package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"formatconv/session"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoToken      = errors.New("missing bearer token")
	errExpired      = errors.New("session expired; start a new one")
	errInvalidToken = errors.New("invalid session token")
)

// issueToken signs a token whose subject is the session ID.
func (s *Server) issueToken(sessionID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func bearer(h http.Header) string {
	const prefix = "Bearer "
	authz := h.Get("Authorization")
	if !strings.HasPrefix(authz, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, prefix))
}

// sessionFor resolves the session named by the request's bearer token.
func (s *Server) sessionFor(r *http.Request) (*session.Session, error) {
	raw := bearer(r.Header)
	if raw == "" {
		return nil, errNoToken
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, errExpired
	}
	if err != nil || claims.Subject == "" {
		return nil, errInvalidToken
	}
	sess, ok := s.sessions.Get(claims.Subject)
	if !ok {
		return nil, errExpired
	}
	return sess, nil
}
