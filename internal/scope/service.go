package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"pmohub/internal/dossier"
	"pmohub/internal/events"
	"pmohub/internal/kv"
)

const selectionKeyPrefix = "pmo:scope:"

// SelectionKey returns the storage key for a document's scope selection.
func SelectionKey(documentID string) string {
	return selectionKeyPrefix + documentID
}

// Service persists per-document scope selections and keeps the registry's
// active_subforms in step with the resolver output. The enabled set is
// never stored on its own; it is recomputed from the flags on every write.
type Service struct {
	store    kv.Store
	registry *dossier.Registry
	bus      *events.Bus
	logger   *slog.Logger
}

func NewService(store kv.Store, registry *dossier.Registry, bus *events.Bus, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("scope: kv store is required")
	}
	if registry == nil {
		return nil, errors.New("scope: registry is required")
	}
	if bus == nil {
		return nil, errors.New("scope: event bus is required")
	}
	if logger == nil {
		return nil, errors.New("scope: logger is required")
	}
	return &Service{
		store:    store,
		registry: registry,
		bus:      bus,
		logger:   logger.With("component", "scope"),
	}, nil
}

// Selection reads a document's stored selection. A document with no
// selection yet defaults to intending to certify with no activities, so a
// fresh dossier offers the base form.
func (s *Service) Selection(ctx context.Context, documentID string) (Selection, error) {
	raw, err := s.store.Get(ctx, SelectionKey(documentID))
	if errors.Is(err, kv.ErrNotFound) {
		return Selection{IntendsToCertify: true}, nil
	}
	if err != nil {
		return Selection{}, fmt.Errorf("load scope %s: %w", documentID, err)
	}

	var sel Selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		s.logger.WarnContext(ctx, "corrupt scope selection, using default",
			"document_id", documentID, "error", err)
		return Selection{IntendsToCertify: true}, nil
	}
	return sel, nil
}

// SetSelection persists the selection, resolves the enabled sub-form set,
// and pushes it into the registry. Returns the resolved set.
func (s *Service) SetSelection(ctx context.Context, documentID string, sel Selection) ([]string, error) {
	if _, err := s.registry.Get(ctx, documentID); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(sel)
	if err != nil {
		return nil, fmt.Errorf("marshal scope %s: %w", documentID, err)
	}
	if err := s.store.Set(ctx, SelectionKey(documentID), raw); err != nil {
		return nil, fmt.Errorf("persist scope %s: %w", documentID, err)
	}

	enabled := Resolve(sel)
	if err := s.registry.SetActiveSubforms(ctx, documentID, enabled); err != nil {
		return nil, err
	}

	s.bus.Publish(events.KindScopeChanged, documentID, "")
	return enabled, nil
}

// RemoveDocument deletes the document's scope selection. Registered as a
// registry delete cascade.
func (s *Service) RemoveDocument(ctx context.Context, documentID string) error {
	return s.store.Delete(ctx, SelectionKey(documentID))
}
