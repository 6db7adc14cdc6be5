package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sandai/arena/src/domain/shared"
)

var (
	errUnauthorized = errors.New("missing or invalid bearer token")
	errForbidden    = errors.New("operator role required")
)

// Claims are the bearer token claims. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID shared.UserID
	Admin  bool
}

// Authenticator verifies HS256 tokens issued by the identity service.
type Authenticator struct {
	Secret    []byte
	Issuer    string
	AdminRole string
}

func (a *Authenticator) Verify(raw string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	user := shared.UserID(claims.Subject)
	if err := user.Validate(); err != nil {
		return Principal{}, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	return Principal{UserID: user, Admin: a.AdminRole != "" && claims.Role == a.AdminRole}, nil
}

// Issue signs a token for user. Used by tests and local tooling.
func (a *Authenticator) Issue(user shared.UserID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user),
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

const principalKey contextKey = "principal"

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			s.writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		p, err := s.cfg.Auth.Verify(raw)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// admin wraps operator-only handlers.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).Admin {
			s.writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		next(w, r)
	}
}

func principalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}
