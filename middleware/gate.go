package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/upb/jwt-gate/keycache"
	"github.com/upb/jwt-gate/rbac"
	"github.com/upb/jwt-gate/token"
	"github.com/upb/jwt-gate/utils"
	"go.uber.org/zap"
)

// bearerPrefixLen is the length of the "Bearer " prefix cut from the
// authorization header. The prefix itself is not inspected.
const bearerPrefixLen = len("Bearer ")

var (
	// ErrUnauthorized is returned when the token cannot be verified
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when verified claims fail the permission spec
	ErrForbidden = errors.New("forbidden")
)

// KeySource supplies the PEM encoded public signing key
type KeySource interface {
	GetKey(ctx context.Context) ([]byte, error)
}

// TokenVerifier defines the interface for verifying tokens against a key
type TokenVerifier interface {
	// Verify validates a raw token and returns its claims
	Verify(ctx context.Context, raw string, pemKey []byte) (token.Claims, error)
}

// GateOptions configures a Gate
type GateOptions struct {
	// Debug enables progress and failure messages
	Debug bool
}

// Gate authenticates requests with a bearer token and enforces an optional
// permission spec on the verified claims.
type Gate struct {
	keys     KeySource
	verifier TokenVerifier
	debug    bool
	logger   *zap.Logger
}

// NewGate creates a new Gate
func NewGate(keys KeySource, verifier TokenVerifier, opts GateOptions, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		keys:     keys,
		verifier: verifier,
		debug:    opts.Debug,
		logger:   logger,
	}
}

// BearerToken cuts the fixed seven character prefix off an authorization header
func BearerToken(header string) string {
	if len(header) <= bearerPrefixLen {
		return ""
	}
	return header[bearerPrefixLen:]
}

// StatusCode maps an Authorize error to its HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Authorize verifies raw and evaluates spec against its claims. A nil spec
// accepts any verified token. Errors wrap ErrUnauthorized or ErrForbidden.
func (g *Gate) Authorize(ctx context.Context, raw string, spec rbac.Spec) (token.Claims, error) {
	return g.authorize(ctx, raw, spec, g.debugLog(nil))
}

func (g *Gate) authorize(ctx context.Context, raw string, spec rbac.Spec, log func(string)) (token.Claims, error) {
	key, err := g.keys.GetKey(keycache.WithProgress(ctx, log))
	if err != nil {
		log(err.Error())
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	log("Verifying JWT...")
	claims, err := g.verifier.Verify(ctx, raw, key)
	if err != nil {
		log(err.Error())
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	if spec != nil && !spec.Allows(claims) {
		return nil, ErrForbidden
	}

	return claims, nil
}

// debugLog returns the sink for debug messages: sink when set, the zap
// logger otherwise, or a no-op when debug is off.
func (g *Gate) debugLog(sink func(string), fields ...zap.Field) func(string) {
	if !g.debug {
		return func(string) {}
	}
	if sink != nil {
		return sink
	}
	return func(msg string) {
		g.logger.Info(msg, fields...)
	}
}

// RequireAuth is a middleware that requires a valid token
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return g.Require(nil)(next)
}

// Require is a middleware that requires a valid token whose claims satisfy spec.
// Verified claims are available to next through GetClaimsFromContext.
func (g *Gate) Require(spec rbac.Spec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			raw := BearerToken(r.Header.Get("Authorization"))
			claims, err := g.authorize(ctx, raw, spec, g.debugLog(nil, zap.String("request_id", requestID)))
			if err != nil {
				_ = utils.WriteRejection(w, StatusCode(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}
