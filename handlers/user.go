package handlers

import (
	"context"
	"net/http"

	"github.com/upb/jwt-gate/middleware"
	"github.com/upb/jwt-gate/utils"
)

// CurrentUser answers with the verified claims of the caller
func CurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteError(w, http.StatusUnauthorized, utils.MessageAuthenticationRequired)
		return
	}
	_ = utils.WriteOK(w, claims)
}

// WhoAmI is a function answering with the invocation's user as the body
func WhoAmI(ctx context.Context, inv *middleware.Invocation, args ...interface{}) (interface{}, error) {
	inv.Res = &middleware.Response{Body: inv.User}
	return nil, nil
}
