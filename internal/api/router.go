package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/cardiotriage/internal/api/middleware"
	"github.com/kiranshivaraju/cardiotriage/internal/api/response"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	AnalyzeHandler http.HandlerFunc

	CreateDiagnosis http.HandlerFunc
	ListDiagnoses   http.HandlerFunc
	GetDiagnosis    http.HandlerFunc
	VerifyDiagnosis http.HandlerFunc

	ListModels        http.HandlerFunc
	CreateLocalModel  http.HandlerFunc
	CreateRemoteModel http.HandlerFunc
	ToggleModel       http.HandlerFunc
	GetSettings       http.HandlerFunc
	SwitchInfra       http.HandlerFunc
	ActiveModels      http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		// Clinical routes; admins may use them too.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeDoctor, models.ScopeAdmin))

			r.Post("/api/v1/analyze", orNotImplemented(deps.AnalyzeHandler))

			r.Post("/api/v1/diagnoses", orNotImplemented(deps.CreateDiagnosis))
			r.Get("/api/v1/diagnoses", orNotImplemented(deps.ListDiagnoses))
			r.Get("/api/v1/diagnoses/{diagnosisID}", orNotImplemented(deps.GetDiagnosis))
			r.Get("/api/v1/diagnoses/{diagnosisID}/verify", orNotImplemented(deps.VerifyDiagnosis))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Get("/api/v1/admin/models", orNotImplemented(deps.ListModels))
			r.Post("/api/v1/admin/models/local", orNotImplemented(deps.CreateLocalModel))
			r.Post("/api/v1/admin/models/remote", orNotImplemented(deps.CreateRemoteModel))
			r.Post("/api/v1/admin/models/{modelID}/toggle", orNotImplemented(deps.ToggleModel))

			r.Get("/api/v1/admin/settings", orNotImplemented(deps.GetSettings))
			r.Put("/api/v1/admin/settings/infrastructure", orNotImplemented(deps.SwitchInfra))
			r.Get("/api/v1/admin/active-models", orNotImplemented(deps.ActiveModels))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
