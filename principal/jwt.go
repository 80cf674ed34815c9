package principal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	// SigningMethod is "HS256" or "RS256"
	SigningMethod string
	SecretKey     string
	PublicKey     string
	Issuer        string
	Audience      string
}

// JWTVerifier verifies bearer tokens and exposes their claims.
type JWTVerifier struct {
	method jwt.SigningMethod
	key    any
	opts   []jwt.ParserOption
}

// NewJWTVerifier creates a verifier for the configured signing method.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	v := &JWTVerifier{}

	switch cfg.SigningMethod {
	case "", "HS256":
		if cfg.SecretKey == "" {
			return nil, errors.New("secret key required for HS256")
		}
		v.method = jwt.SigningMethodHS256
		v.key = []byte(cfg.SecretKey)
	case "RS256":
		if cfg.PublicKey == "" {
			return nil, errors.New("public key required for RS256")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		v.method = jwt.SigningMethodRS256
		v.key = key
	default:
		return nil, fmt.Errorf("unsupported signing method: %s", cfg.SigningMethod)
	}

	v.opts = append(v.opts, jwt.WithValidMethods([]string{v.method.Alg()}))
	if cfg.Issuer != "" {
		v.opts = append(v.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.opts = append(v.opts, jwt.WithAudience(cfg.Audience))
	}
	return v, nil
}

// Verify parses a token, with or without a "Bearer " prefix, and returns its
// claims.
func (v *JWTVerifier) Verify(token string) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, v.opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return map[string]any(claims), nil
}
