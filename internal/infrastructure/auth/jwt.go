package auth

import (
	"errors"

	"github.com/erp/fulfillment/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrNotConfigured    = errors.New("token verification is not configured")
)

// Claims are the registered claims of a bearer token issued by the
// authentication service. The user id travels in "sub".
type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a user id
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrMissingSubject
	}
	return id, nil
}

// JWTVerifier validates HS256 bearer tokens signed with a shared secret
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier from the jwt config section.
// An empty issuer accepts tokens from any issuer.
func NewJWTVerifier(cfg config.JWTConfig) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Enabled reports whether a signing secret is configured
func (v *JWTVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify validates tokenString and returns its claims
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	if !v.Enabled() {
		return nil, ErrNotConfigured
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		}
		return nil, ErrInvalidToken
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
