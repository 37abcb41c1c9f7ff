package utils

import (
	"encoding/json"
	"net/http"
)

// Messages sent with rejected requests. The verification error itself is
// never echoed to the caller.
const (
	MessageInvalidToken            = "Invalid or expired token"
	MessageInsufficientPermissions = "Insufficient permissions"
	MessageAuthenticationRequired  = "Authentication required"
)

// errorCodes maps a status to the code carried in ErrorResponse.Error
var errorCodes = map[int]string{
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusInternalServerError: "internal_error",
}

// ErrorResponse is the body of every non-2xx JSON answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse wraps handler data
type SuccessResponse struct {
	Data interface{} `json:"data,omitempty"`
}

// ErrorCode returns the error code used for status
func ErrorCode(status int) string {
	if code, ok := errorCodes[status]; ok {
		return code
	}
	return "error"
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with data in the envelope
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteError writes an ErrorResponse whose code follows status
func WriteError(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, ErrorResponse{
		Error:   ErrorCode(status),
		Message: message,
	})
}

// WriteRejection answers a request the gate turned away. Only 403 gets the
// permissions message; any other status is reported as a bad token.
func WriteRejection(w http.ResponseWriter, status int) error {
	if status == http.StatusForbidden {
		return WriteError(w, http.StatusForbidden, MessageInsufficientPermissions)
	}
	return WriteError(w, http.StatusUnauthorized, MessageInvalidToken)
}
