package handlers

import (
	"net/http"
	"strings"

	"github.com/upb/jwt-gate/middleware"
	"github.com/upb/jwt-gate/utils"
	"go.uber.org/zap"
)

// FunctionHost runs a Func per HTTP request the way a function runtime would:
// headers are handed over with lower-cased names and the function's response
// slot becomes the HTTP response.
type FunctionHost struct {
	logger *zap.Logger
}

// NewFunctionHost creates a new FunctionHost
func NewFunctionHost(logger *zap.Logger) *FunctionHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FunctionHost{logger: logger}
}

// Handle adapts fn to an http.HandlerFunc
func (h *FunctionHost) Handle(fn middleware.Func) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestIDFromContext(r.Context())

		inv := &middleware.Invocation{
			ID:  requestID,
			Req: &middleware.Request{Headers: lowerHeaders(r.Header)},
			Res: &middleware.Response{},
			Log: func(msg string) {
				h.logger.Info(msg, zap.String("request_id", requestID))
			},
		}

		if _, err := fn(r.Context(), inv, r); err != nil {
			h.logger.Error("function failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		status := http.StatusOK
		var body interface{}
		if inv.Res != nil {
			if inv.Res.Status != 0 {
				status = inv.Res.Status
			}
			body = inv.Res.Body
		}

		_ = utils.WriteJSON(w, status, body)
	}
}

// lowerHeaders flattens h into a map keyed by lower-cased header names
func lowerHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for name, values := range h {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return headers
}
