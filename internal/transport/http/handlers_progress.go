package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	scores, err := h.tracker.All(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": scores})
}

func (h *Handler) handleGetOverallProgress(w http.ResponseWriter, r *http.Request) {
	overall, err := h.tracker.Overall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"overall": overall})
}

func (h *Handler) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Percentage int `json:"percentage"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")
	if err := h.tracker.Save(r.Context(), id, name, body.Percentage); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecalculateProgress recomputes a sub-form's score from its stored
// field data and persists the result.
func (h *Handler) handleRecalculateProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	fields, err := h.payloads.Subform(r.Context(), id, name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	pct := h.tracker.Calculate(name, fields)
	if err := h.tracker.Save(r.Context(), id, name, pct); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"percentage": pct})
}
