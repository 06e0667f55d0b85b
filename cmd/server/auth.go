package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lychee-technology/widgets"
)

var errInvalidToken = errors.New("invalid bearer token")

// tokenAuthenticator extracts the acting username from an HS256 bearer token.
type tokenAuthenticator struct {
	secret []byte
	issuer string
}

func newTokenAuthenticator(cfg widgets.AuthConfig) *tokenAuthenticator {
	return &tokenAuthenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Authenticate returns "" for requests without an Authorization header.
func (a *tokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errInvalidToken
	}
	if a == nil || len(a.secret) == 0 {
		return "", fmt.Errorf("%w: token authentication is not configured", errInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	return claims.Subject, nil
}
