package httptransport

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	pkgerrors "pmohub/pkg/errors"
)

func (h *Handler) handleGetPayload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.payloads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleGetSubform(w http.ResponseWriter, r *http.Request) {
	fields, err := h.payloads.Subform(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	// Unsaved sub-forms are null, not 404: the document may exist with the
	// sub-form simply not started yet.
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (h *Handler) handleSetSubform(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")
	if err := h.payloads.SetSubform(r.Context(), id, name, fields); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAttachArtifact(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.logger, pkgerrors.New(pkgerrors.CodeBadRequest, "read artifact body: "+err.Error()))
		return
	}

	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")
	if err := h.payloads.AttachArtifact(r.Context(), id, name, blob); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	blob, err := h.payloads.Artifact(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}
