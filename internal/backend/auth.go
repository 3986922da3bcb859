package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"boletodesk/internal/records"
)

const routeLogin = "POST /auth/login"

// Login exchanges operator credentials for an access token. The returned
// token is not installed on c; callers persist it and build a new client.
func (c *Client) Login(ctx context.Context, email, password string) (*records.Login, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password required")
	}
	req, err := c.jsonRequest(routeLogin, http.MethodPost, "/auth/login", map[string]string{
		"email": email,
		"senha": password,
	})
	if err != nil {
		return nil, err
	}
	req.anonymous = true
	var out records.Login
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenExpired reports whether token is a JWT whose exp claim is not after
// now. The signature is not verified; the backend does that. Opaque tokens
// and tokens without exp are never considered expired.
func TokenExpired(token string, parser *jwt.Parser, now func() int64) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if parser == nil {
		parser = jwt.NewParser()
	}
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Unix() <= now()
}

func (c *Client) tokenExpired() bool {
	return TokenExpired(c.token, nil, func() int64 { return c.now().Unix() })
}
