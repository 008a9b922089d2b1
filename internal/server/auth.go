package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonathan/prospector/internal/config"
)

// adminSubject is the subject claim carried by tokens issued to operators.
const adminSubject = "admin"

// AuthService exchanges the operator password for a signed admin token.
// The expected password is provisioned as a bcrypt hash (ADMIN_PASSWORD_HASH)
// so the plaintext never lives in configuration.
type AuthService struct {
	jwt       *JWTService
	passwords *config.PasswordConfig
	adminHash string
}

// NewAuthService creates an auth service. An empty adminHash disables token
// issuance, which in turn locks out the mutating scheduler endpoints.
func NewAuthService(jwt *JWTService, passwords *config.PasswordConfig, adminHash string) *AuthService {
	return &AuthService{
		jwt:       jwt,
		passwords: passwords,
		adminHash: adminHash,
	}
}

// IssueToken verifies the operator password and returns a signed admin token.
func (a *AuthService) IssueToken(password string) (string, error) {
	if a.adminHash == "" {
		return "", &ErrAuthNotConfigured{}
	}
	if !a.passwords.VerifyPassword(password, a.adminHash) {
		return "", &ErrInvalidCredentials{}
	}
	return a.jwt.GenerateToken(adminSubject, "admin")
}

// tokenRequest is the request body for POST /auth/token.
type tokenRequest struct {
	Password string `json:"password"`
}

// tokenResponse is the response body for POST /auth/token.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleIssueToken exchanges the admin password for a bearer token.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Password == "" {
		s.errorResponse(w, http.StatusBadRequest, "password is required")
		return
	}

	token, err := s.auth.IssueToken(req.Password)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	expiresAt := time.Now().Add(time.Duration(s.auth.jwt.config.ExpirationHours) * time.Hour)
	s.jsonResponse(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}
