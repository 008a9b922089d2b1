package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClaims struct {
	subject string
}

func (c *staticClaims) GetSubject() string {
	return c.subject
}

type staticValidator struct {
	token   string
	subject string
}

func (v *staticValidator) ValidateToken(tokenString string) (SubjectGetter, error) {
	if tokenString != v.token {
		return nil, errors.New("invalid token")
	}
	return &staticClaims{subject: v.subject}, nil
}

func newProtectedHandler(t *testing.T, validator TokenValidator) (http.Handler, *string) {
	t.Helper()

	var seenSubject string
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := GetSubject(r)
		require.NoError(t, err)
		seenSubject = subject
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seenSubject
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	handler, seen := newProtectedHandler(t, &staticValidator{token: "good-token", subject: "admin"})

	req := httptest.NewRequest("POST", "/scheduler/trigger", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", *seen)
}

func TestAuthMiddleware_CaseInsensitiveBearer(t *testing.T) {
	handler, _ := newProtectedHandler(t, &staticValidator{token: "good-token", subject: "admin"})

	req := httptest.NewRequest("POST", "/scheduler/trigger", nil)
	req.Header.Set("Authorization", "bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	handler, _ := newProtectedHandler(t, &staticValidator{token: "good-token", subject: "admin"})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "good-token"},
		{"wrong scheme", "Basic good-token"},
		{"empty token", "Bearer "},
		{"invalid token", "Bearer bad-token"},
		{"extra parts", "Bearer good token extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/scheduler/trigger", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGetSubject_MissingFromContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)

	_, err := GetSubject(req)
	assert.Error(t, err)
}
