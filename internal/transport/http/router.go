// Package httptransport is the thin JSON layer over the dossier core. It
// delegates to domain services without embedding business logic so
// transport concerns remain isolated.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pmohub/internal/dossier"
	"pmohub/internal/progress"
	"pmohub/internal/scope"
)

// Handler bundles the domain services the transport exposes.
type Handler struct {
	registry *dossier.Registry
	payloads *dossier.PayloadStore
	scopes   *scope.Service
	tracker  *progress.Tracker
	logger   *slog.Logger
}

func NewHandler(
	registry *dossier.Registry,
	payloads *dossier.PayloadStore,
	scopes *scope.Service,
	tracker *progress.Tracker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry: registry,
		payloads: payloads,
		scopes:   scopes,
		tracker:  tracker,
		logger:   logger.With("component", "http"),
	}
}

// NewRouter wires all public endpoints. auth is optional; when non-nil it
// guards everything under /v1.
func NewRouter(h *Handler, auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}

		r.Post("/scope/resolve", h.handleScopeResolvePreview)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.handleListDocuments)
			r.Post("/", h.handleCreateDocument)
			r.Get("/active", h.handleGetActive)
			r.Put("/active", h.handleSetActive)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetDocument)
				r.Patch("/", h.handleUpdateDocument)
				r.Delete("/", h.handleDeleteDocument)

				r.Get("/payload", h.handleGetPayload)
				r.Get("/subforms/{name}", h.handleGetSubform)
				r.Put("/subforms/{name}", h.handleSetSubform)
				r.Get("/artifacts/{name}", h.handleGetArtifact)
				r.Put("/artifacts/{name}", h.handleAttachArtifact)

				r.Get("/scope", h.handleGetScope)
				r.Put("/scope", h.handleSetScope)

				r.Get("/progress", h.handleGetProgress)
				r.Get("/progress/overall", h.handleGetOverallProgress)
				r.Put("/progress/{name}", h.handleSaveProgress)
				r.Post("/progress/{name}/recalculate", h.handleRecalculateProgress)
			})
		})
	})

	return r
}
