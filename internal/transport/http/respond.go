package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pmohub/internal/dossier"
	"pmohub/internal/kv"
	pkgerrors "pmohub/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation to HTTP responses so
// every handler returns the same JSON error envelope.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := classify(err)
	if code == pkgerrors.CodeInternal {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, pkgerrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": err.Error(),
	})
}

func classify(err error) pkgerrors.Code {
	var coded pkgerrors.CodedError
	switch {
	case errors.As(err, &coded):
		return coded.Code
	case errors.Is(err, dossier.ErrNotFound),
		errors.Is(err, dossier.ErrNoActiveDocument),
		errors.Is(err, kv.ErrNotFound):
		return pkgerrors.CodeNotFound
	case errors.Is(err, kv.ErrQuotaExceeded):
		return pkgerrors.CodeQuotaExceeded
	case errors.Is(err, dossier.ErrUnknownSubform),
		errors.Is(err, dossier.ErrArtifactTooLarge):
		return pkgerrors.CodeBadRequest
	default:
		return pkgerrors.CodeInternal
	}
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return pkgerrors.New(pkgerrors.CodeBadRequest, "invalid JSON body: "+err.Error())
	}
	return nil
}
