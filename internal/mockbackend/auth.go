package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"boletodesk/internal/records"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"senha" validate:"required"`
}

// IssueToken signs an access token for the account with email.
func (s *Server) IssueToken(email string) (string, error) {
	s.mu.Lock()
	acct, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown account %q", email)
	}
	return s.sign(acct.user, s.now().Add(s.tokenTTL))
}

// IssueExpiredToken signs a token for email whose exp is already in the past.
func (s *Server) IssueExpiredToken(email string) (string, error) {
	s.mu.Lock()
	acct, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown account %q", email)
	}
	return s.sign(acct.user, s.now().Add(-time.Minute))
}

func (s *Server) sign(user records.User, exp time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user.Email,
		ID:        user.ID,
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if err := requestValidator.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "email e senha obrigatorios")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.Unlock()
	if !ok || acct.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Email ou senha incorretos")
		return
	}

	token, err := s.sign(acct.user, s.now().Add(s.tokenTTL))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	writeJSON(w, http.StatusOK, records.Login{AccessToken: token, TokenType: "bearer", User: acct.user})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		_, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.now),
			jwt.WithExpirationRequired(),
		)
		if err != nil {
			detail := "Token invalido"
			if errors.Is(err, jwt.ErrTokenExpired) {
				detail = "Token expirado"
			}
			writeError(w, http.StatusUnauthorized, detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}
