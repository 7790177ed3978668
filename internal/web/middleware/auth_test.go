package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id":   uuid.NewString(),
		"tenant_id": uuid.NewString(),
		"role":      "analyst",
		"email":     "analyst@example.com",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		authHeader func(t *testing.T) string
		wantStatus int
	}{
		{
			name: "valid token passes",
			authHeader: func(t *testing.T) string {
				return "Bearer " + signToken(t, testSecret, validClaims())
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header rejected",
			authHeader: func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong scheme rejected",
			authHeader: func(t *testing.T) string {
				return "Basic " + signToken(t, testSecret, validClaims())
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret rejected",
			authHeader: func(t *testing.T) string {
				return "Bearer " + signToken(t, "another-secret-another-secret-xx", validClaims())
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token rejected",
			authHeader: func(t *testing.T) string {
				claims := validClaims()
				claims["exp"] = time.Now().Add(-time.Minute).Unix()
				return "Bearer " + signToken(t, testSecret, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown role rejected",
			authHeader: func(t *testing.T) string {
				claims := validClaims()
				claims["role"] = "owner"
				return "Bearer " + signToken(t, testSecret, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed tenant id rejected",
			authHeader: func(t *testing.T) string {
				claims := validClaims()
				claims["tenant_id"] = "not-a-uuid"
				return "Bearer " + signToken(t, testSecret, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, ok := IdentityFromContext(r.Context())
				assert.True(t, ok, "identity missing from context")
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
			if header := tt.authHeader(t); header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestBearerAuthIdentityClaims(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	claims := jwt.MapClaims{
		"user_id":   userID.String(),
		"tenant_id": tenantID.String(),
		"role":      "admin",
		"email":     "admin@example.com",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}

	var got *Identity
	handler := BearerAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, claims))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, tenantID, got.TenantID)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, "admin@example.com", got.Email)
}

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleAnalyst, false},
		{RoleAnalyst, RoleAnalyst, true},
		{RoleAnalyst, RoleAdmin, false},
		{RoleAdmin, RoleAnalyst, true},
		{RoleAdmin, RoleSuperAdmin, false},
		{RoleSuperAdmin, RoleAdmin, true},
		{Role("owner"), RoleViewer, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.AtLeast(tt.min), "%s at least %s", tt.role, tt.min)
	}
}
