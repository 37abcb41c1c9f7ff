package middleware

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/jwt-gate/rbac"
	"github.com/upb/jwt-gate/token"
	"go.uber.org/zap"
)

// ErrNilInvocation is returned when a wrapped Func is called without an Invocation
var ErrNilInvocation = errors.New("nil invocation")

// Request holds the inbound headers. Header names are expected in lower case.
type Request struct {
	Headers map[string]string
}

// BindingData holds trigger metadata supplied by the host
type BindingData struct {
	Headers map[string]string
}

// Response is the slot a function fills to answer the host
type Response struct {
	Status int         `json:"status,omitempty"`
	Body   interface{} `json:"body,omitempty"`
}

// Invocation is the per-call context a host passes to a function
type Invocation struct {
	ID          string
	Req         *Request
	BindingData *BindingData
	Res         *Response

	// User holds the verified claims once the gate lets the call through
	User token.Claims

	// Log receives debug messages when the gate runs in debug mode
	Log func(msg string)
}

// Func is a host invoked function
type Func func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error)

// authorization returns the request's authorization header, falling back to
// the binding data headers.
func (inv *Invocation) authorization() string {
	if inv.Req != nil {
		if h := inv.Req.Headers["authorization"]; h != "" {
			return h
		}
	}
	if inv.BindingData != nil {
		return inv.BindingData.Headers["authorization"]
	}
	return ""
}

// Wrap decorates fn so it only runs for a verified token whose claims satisfy
// spec. On rejection inv.Res carries 401 or 403, fn is not called and the
// result is nil. Otherwise fn's result is returned as is.
func (g *Gate) Wrap(fn Func, spec rbac.Spec) Func {
	return func(ctx context.Context, inv *Invocation, args ...interface{}) (interface{}, error) {
		if inv == nil {
			return nil, ErrNilInvocation
		}
		if inv.ID == "" {
			inv.ID = uuid.NewString()
		}

		log := g.debugLog(inv.Log, zap.String("invocation_id", inv.ID))

		claims, err := g.authorize(ctx, BearerToken(inv.authorization()), spec, log)
		if err != nil {
			inv.Res = &Response{Status: StatusCode(err)}
			return nil, nil
		}

		inv.User = claims
		return fn(ctx, inv, args...)
	}
}
