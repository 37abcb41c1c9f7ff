package token

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no token was presented
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrInvalidKey is returned when the signing key is not a usable PEM public key
	ErrInvalidKey = errors.New("invalid public key")
)

var (
	rsaMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}
	ecMethods  = []string{"ES256", "ES384", "ES512"}
)

// Options are the standard claims every token must satisfy.
// Empty fields are not checked.
type Options struct {
	Audience string
	Issuer   string
}

// Verifier checks token signatures and standard claims against a PEM public key
type Verifier struct {
	opts Options
}

// NewVerifier creates a new Verifier
func NewVerifier(opts Options) *Verifier {
	return &Verifier{opts: opts}
}

// Options returns the verification options
func (v *Verifier) Options() Options {
	return v.opts
}

// Verify validates a raw token against pemKey and returns its claims
func (v *Verifier) Verify(ctx context.Context, raw string, pemKey []byte) (Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrMissingToken
	}

	key, methods, err := ParsePublicKey(pemKey)
	if err != nil {
		return nil, err
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if v.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.opts.Audience))
	}
	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, fmt.Errorf("%w: %v", ErrInvalidAudience, err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return Claims(claims), nil
}

// ParsePublicKey decodes a PEM encoded RSA or ECDSA public key and reports the
// signing algorithms it may verify.
func ParsePublicKey(pemKey []byte) (crypto.PublicKey, []string, error) {
	if key, err := jwt.ParseRSAPublicKeyFromPEM(pemKey); err == nil {
		return key, rsaMethods, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(pemKey); err == nil {
		return key, ecMethods, nil
	}
	return nil, nil, ErrInvalidKey
}
