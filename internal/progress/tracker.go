// Package progress computes and persists per-sub-form completion scores.
// Records are stored independently of the form payload so scores survive
// without re-parsing full form content, and mirrored into the registry
// snapshot for cheap list views.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"pmohub/internal/dossier"
	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/platform/metrics"
	"pmohub/internal/subform"
	pkgerrors "pmohub/pkg/errors"
)

const recordKeyPrefix = "pmo:progress:"

// RecordKey returns the storage key for one (document, sub-form) pair.
func RecordKey(documentID, subformName string) string {
	return recordKeyPrefix + documentID + ":" + subformName
}

// Record is one persisted completion score.
type Record struct {
	Percentage  int       `json:"percentage"`
	LastUpdated time.Time `json:"last_updated"`
}

// Tracker calculates, persists, and aggregates completion scores.
type Tracker struct {
	store    kv.Store
	registry *dossier.Registry
	schemas  *subform.Registry
	bus      *events.Bus
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewTracker(
	store kv.Store,
	registry *dossier.Registry,
	schemas *subform.Registry,
	bus *events.Bus,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("progress: kv store is required")
	}
	if registry == nil {
		return nil, errors.New("progress: registry is required")
	}
	if schemas == nil {
		return nil, errors.New("progress: subform registry is required")
	}
	if bus == nil {
		return nil, errors.New("progress: event bus is required")
	}
	if logger == nil {
		return nil, errors.New("progress: logger is required")
	}
	return &Tracker{
		store:    store,
		registry: registry,
		schemas:  schemas,
		bus:      bus,
		logger:   logger.With("component", "progress"),
		metrics:  m,
	}, nil
}

// Calculate is the pure scoring function: the share of the sub-form's
// required fields holding a filled value, rounded to the nearest integer.
// A sub-form with zero required fields scores 0; that is a defined edge
// case, not an error.
func (t *Tracker) Calculate(subformName string, fields map[string]any) int {
	schema, ok := t.schemas.Get(subformName)
	if !ok || len(schema.Required) == 0 {
		return 0
	}
	filled := 0
	for _, name := range schema.Required {
		if subform.Filled(fields[name]) {
			filled++
		}
	}
	return int(math.Round(float64(filled) / float64(len(schema.Required)) * 100))
}

// Save persists a score and mirrors it into the registry snapshot. It
// emits progress.saved for presentation collaborators; subscribers must
// not recompute scores in response or saves would recurse.
//
// Scores are kept even for sub-forms the scope has currently disabled: the
// scope can re-enable an annex later and partial work should still count.
func (t *Tracker) Save(ctx context.Context, documentID, subformName string, pct int) error {
	if pct < 0 || pct > 100 {
		return pkgerrors.New(pkgerrors.CodeBadRequest,
			fmt.Sprintf("percentage %d out of range [0, 100]", pct))
	}
	if !t.schemas.Known(subformName) {
		return fmt.Errorf("%w: %s", dossier.ErrUnknownSubform, subformName)
	}
	if _, err := t.registry.Get(ctx, documentID); err != nil {
		return err
	}

	record := Record{Percentage: pct, LastUpdated: time.Now()}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal progress %s/%s: %w", documentID, subformName, err)
	}
	if err := t.store.Set(ctx, RecordKey(documentID, subformName), raw); err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			t.metrics.IncQuotaRejections()
		}
		return fmt.Errorf("persist progress %s/%s: %w", documentID, subformName, err)
	}

	if err := t.registry.SetProgress(ctx, documentID, subformName, pct); err != nil {
		t.logger.WarnContext(ctx, "failed to mirror progress into registry",
			"document_id", documentID, "subform", subformName, "error", err)
	}

	t.metrics.IncProgressSaves()
	t.bus.Publish(events.KindProgressSaved, documentID, subformName)
	return nil
}

// Get returns one sub-form's saved score; missing and corrupt records both
// score 0.
func (t *Tracker) Get(ctx context.Context, documentID, subformName string) (int, error) {
	raw, err := t.store.Get(ctx, RecordKey(documentID, subformName))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load progress %s/%s: %w", documentID, subformName, err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		t.logger.WarnContext(ctx, "corrupt progress record, treating as zero",
			"document_id", documentID, "subform", subformName, "error", err)
		return 0, nil
	}
	return record.Percentage, nil
}

// All returns every saved score for a document, keyed by sub-form name.
func (t *Tracker) All(ctx context.Context, documentID string) (map[string]int, error) {
	prefix := recordKeyPrefix + documentID + ":"
	keys, err := t.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list progress %s: %w", documentID, err)
	}

	scores := make(map[string]int, len(keys))
	for _, key := range keys {
		subformName := strings.TrimPrefix(key, prefix)
		pct, err := t.Get(ctx, documentID, subformName)
		if err != nil {
			return nil, err
		}
		scores[subformName] = pct
	}
	return scores, nil
}

// Overall aggregates the document's scores: the rounded mean over the
// currently enabled sub-forms only, with unsaved scores counting 0. A
// document with no enabled sub-forms scores 0.
func (t *Tracker) Overall(ctx context.Context, documentID string) (int, error) {
	doc, err := t.registry.Get(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(doc.ActiveSubforms) == 0 {
		return 0, nil
	}

	scores, err := t.All(ctx, documentID)
	if err != nil {
		return 0, err
	}
	sum := 0
	for _, name := range doc.ActiveSubforms {
		sum += scores[name]
	}
	return int(math.Round(float64(sum) / float64(len(doc.ActiveSubforms)))), nil
}

// RemoveDocument deletes all of a document's progress records. Registered
// as a registry delete cascade.
func (t *Tracker) RemoveDocument(ctx context.Context, documentID string) error {
	keys, err := t.store.Keys(ctx, recordKeyPrefix+documentID+":")
	if err != nil {
		return fmt.Errorf("list progress %s: %w", documentID, err)
	}
	for _, key := range keys {
		if err := t.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
