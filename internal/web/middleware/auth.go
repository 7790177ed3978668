// Package middleware provides HTTP middleware for the API, most
// importantly JWT bearer-token authentication.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is an authenticated user's authorization level within a tenant.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleAnalyst    Role = "analyst"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRank = map[Role]int{
	RoleViewer:     0,
	RoleAnalyst:    1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// AtLeast reports whether the role grants at least min's privileges.
// Unknown roles grant nothing.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// Identity is the authenticated caller, extracted from the bearer
// token. SuperAdmins may cross tenant boundaries; everyone else is
// confined to TenantID.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	Role     Role
}

type contextKey int

const identityKey contextKey = 0

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// BearerAuth returns middleware that validates an HMAC-signed JWT from
// the Authorization header and stores the caller's Identity in the
// request context. Requests without a valid token get 401.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				unauthorized(w, r, "missing bearer token")
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil || !token.Valid {
				unauthorized(w, r, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				unauthorized(w, r, "invalid token claims")
				return
			}
			identity, err := identityFromClaims(claims)
			if err != nil {
				unauthorized(w, r, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	userID, err := claimUUID(claims, "user_id")
	if err != nil {
		return nil, err
	}
	tenantID, err := claimUUID(claims, "tenant_id")
	if err != nil {
		return nil, err
	}

	role, _ := claims["role"].(string)
	if _, known := roleRank[Role(role)]; !known {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	email, _ := claims["email"].(string)

	return &Identity{
		UserID:   userID,
		TenantID: tenantID,
		Email:    email,
		Role:     Role(role),
	}, nil
}

func claimUUID(claims jwt.MapClaims, name string) (uuid.UUID, error) {
	raw, _ := claims[name].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("missing or malformed %s claim", name)
	}
	return id, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("auth: rejected request",
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
		"reason", reason,
	)
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}
