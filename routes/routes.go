package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/jwt-gate/app"
	"github.com/upb/jwt-gate/handlers"
	"github.com/upb/jwt-gate/rbac"
	"github.com/upb/jwt-gate/utils"
)

var (
	// collaborators must hold every permitted role
	collaborators = rbac.Spec{
		"permissions": rbac.RoleList("collaboration:start"),
	}

	// strictCollaborators additionally exclude anyone holding a denied role
	strictCollaborators = rbac.Spec{
		"permissions": rbac.RuleObject(
			rbac.AllOf("collaboration:start"),
			rbac.AnyOf("level:very-lowly-indeed"),
		),
	}
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	gate := deps.Gate

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Any verified token
		r.With(gate.RequireAuth).Get("/me", handlers.CurrentUser)

		// Role protected examples
		r.With(gate.Require(collaborators)).Get("/collaboration", handlers.CurrentUser)
		r.With(gate.Require(strictCollaborators)).Get("/collaboration/strict", handlers.CurrentUser)

		// Spec loaded from PERMISSIONS_FILE
		r.With(gate.Require(deps.Permissions)).Get("/protected", handlers.CurrentUser)
	})

	// Function style endpoints wrapped by the gate
	host := handlers.NewFunctionHost(deps.Logger.Named("functions"))
	r.Route("/functions", func(r chi.Router) {
		r.Get("/whoami", host.Handle(gate.Wrap(handlers.WhoAmI, nil)))
		r.Get("/collaboration", host.Handle(gate.Wrap(handlers.WhoAmI, collaborators)))
		r.Get("/collaboration/strict", host.Handle(gate.Wrap(handlers.WhoAmI, strictCollaborators)))
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found")
	})

	return r
}
