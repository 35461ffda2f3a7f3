package httptransport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pmohub/internal/dossier"
)

func (h *Handler) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var meta dossier.NewDocument
	if err := decodeBody(r, &meta); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id, err := h.registry.Create(r.Context(), meta)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if docs == nil {
		docs = []dossier.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var patch dossier.MetadataPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.registry.UpdateMetadata(r.Context(), id, patch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetActive(w http.ResponseWriter, r *http.Request) {
	doc, err := h.registry.Active(r.Context())
	if errors.Is(err, dossier.ErrNoActiveDocument) {
		writeJSON(w, http.StatusOK, map[string]any{"document": nil})
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.registry.SetActive(r.Context(), body.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
