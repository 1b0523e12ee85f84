package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/irisett-go/irisett/internal/config"
)

// authService issues and validates bearer tokens for the single admin
// account named in config.AuthConfig, grounded on the teacher's
// internal/api/auth.Service (same Claims/Login/ValidateToken shape) but
// storing the admin password as a bcrypt hash instead of comparing it in
// the clear, since this repo has no encryption-key-bearing credential
// vault of its own to reuse the teacher's AES path for.
type authService struct {
	jwtSecret    []byte
	adminUser    string
	passwordHash []byte
	tokenExpiry  time.Duration
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func newAuthService(cfg config.AuthConfig) (*authService, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &authService{
		jwtSecret:    []byte(cfg.JWTSecret),
		adminUser:    cfg.AdminUser,
		passwordHash: hash,
		tokenExpiry:  24 * time.Hour,
	}, nil
}

func (s *authService) login(username, password string) (string, time.Time, error) {
	if username != s.adminUser {
		return "", time.Time{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenExpiry)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "irisett",
		},
	})
	signed, err := tok.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *authService) validate(tokenString string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

// requireAuth is the bearer-token middleware guarding every route except
// /healthz and /api/v1/auth/login.
func (s *authService) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			sendError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := s.validate(strings.TrimPrefix(header, "Bearer ")); err != nil {
			sendError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[loginRequest](w, r)
	if !ok {
		return
	}
	token, expiresAt, err := h.auth.login(req.Username, req.Password)
	if err != nil {
		sendError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	sendJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
