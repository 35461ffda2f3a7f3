package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pmohub/internal/scope"
)

func (h *Handler) handleGetScope(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sel, err := h.scopes.Selection(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"selection":        sel,
		"enabled_subforms": scope.Resolve(sel),
	})
}

func (h *Handler) handleSetScope(w http.ResponseWriter, r *http.Request) {
	var sel scope.Selection
	if err := decodeBody(r, &sel); err != nil {
		writeError(w, h.logger, err)
		return
	}

	enabled, err := h.scopes.SetSelection(r.Context(), chi.URLParam(r, "id"), sel)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled_subforms": enabled})
}

// handleScopeResolvePreview resolves a selection without persisting it, so
// the presentation layer can preview annex menus while the producer edits
// checkboxes.
func (h *Handler) handleScopeResolvePreview(w http.ResponseWriter, r *http.Request) {
	var sel scope.Selection
	if err := decodeBody(r, &sel); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled_subforms": scope.Resolve(sel)})
}
