package dossier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/platform/metrics"
	"pmohub/internal/subform"
)

// Cascade removes a document's dependent records when the registry deletes
// it. The payload store and progress tracker register themselves so delete
// stays a single call for collaborators.
type Cascade interface {
	RemoveDocument(ctx context.Context, documentID string) error
}

// Registry is the single index of all documents plus the active-document
// pointer. Every mutation persists the full snapshot before returning;
// concurrent writers from other contexts are last-write-wins at snapshot
// granularity.
type Registry struct {
	store    kv.Store
	bus      *events.Bus
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cascades []Cascade
}

func NewRegistry(store kv.Store, bus *events.Bus, logger *slog.Logger, m *metrics.Metrics) (*Registry, error) {
	if store == nil {
		return nil, errors.New("dossier: kv store is required")
	}
	if bus == nil {
		return nil, errors.New("dossier: event bus is required")
	}
	if logger == nil {
		return nil, errors.New("dossier: logger is required")
	}
	return &Registry{
		store:   store,
		bus:     bus,
		logger:  logger.With("component", "registry"),
		metrics: m,
	}, nil
}

// AddCascade registers a dependent store for cascade-on-delete.
func (r *Registry) AddCascade(c Cascade) {
	r.cascades = append(r.cascades, c)
}

// Create computes the document id from the metadata and appends a new draft
// document. Creating an already-existing id is not an error: the existing id
// is returned unchanged, which makes create idempotent under retries and
// double-submits.
func (r *Registry) Create(ctx context.Context, meta NewDocument) (string, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return "", err
	}

	id := GenerateID(meta.TaxID, meta.ValidityYear, meta.UnitName)
	if _, ok := findDocument(snap.Documents, id); ok {
		r.logger.WarnContext(ctx, "document already exists, returning existing id", "document_id", id)
		return id, nil
	}

	now := time.Now()
	doc := Document{
		ID:                 id,
		TaxID:              meta.TaxID,
		DisplayName:        meta.DisplayName,
		UnitName:           meta.UnitName,
		CertificationGroup: meta.CertificationGroup,
		ValidityYear:       meta.ValidityYear,
		Status:             StatusDraft,
		ActiveSubforms:     []string{subform.Base},
		Progress:           Progress{Subforms: make(map[string]int)},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	snap.Documents = append(snap.Documents, doc)
	if snap.CurrentDocumentID == "" {
		snap.CurrentDocumentID = id
	}

	if err := r.persist(ctx, snap); err != nil {
		return "", err
	}

	r.metrics.IncDocumentsCreated()
	r.bus.Publish(events.KindDocumentCreated, id, "")
	return id, nil
}

// Get returns a copy of the document's metadata or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Document, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findDocument(snap.Documents, id)
	if !ok {
		return nil, ErrNotFound
	}
	doc := snap.Documents[i]
	return &doc, nil
}

// List returns all documents in creation order.
func (r *Registry) List(ctx context.Context) ([]Document, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Documents, nil
}

// Count returns the number of registered documents.
func (r *Registry) Count(ctx context.Context) (int, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(snap.Documents), nil
}

// UpdateMetadata merges the patch into an existing document's metadata and
// refreshes updated_at. Unknown ids fail with ErrNotFound.
func (r *Registry) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	i, ok := findDocument(snap.Documents, id)
	if !ok {
		return ErrNotFound
	}

	doc := &snap.Documents[i]
	if patch.DisplayName != nil {
		doc.DisplayName = *patch.DisplayName
	}
	if patch.UnitName != nil {
		doc.UnitName = *patch.UnitName
	}
	if patch.CertificationGroup != nil {
		doc.CertificationGroup = *patch.CertificationGroup
	}
	if patch.ValidityYear != nil {
		doc.ValidityYear = *patch.ValidityYear
	}
	if patch.Status != nil {
		doc.Status = *patch.Status
	}
	doc.UpdatedAt = time.Now()

	if err := r.persist(ctx, snap); err != nil {
		return err
	}
	r.bus.Publish(events.KindDocumentUpdated, id, "")
	return nil
}

// SetActive points the registry at the given document. An empty id always
// succeeds and clears the selection; a non-empty unknown id fails.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	if id != "" {
		if _, ok := findDocument(snap.Documents, id); !ok {
			return ErrNotFound
		}
	}
	snap.CurrentDocumentID = id
	if err := r.persist(ctx, snap); err != nil {
		return err
	}
	r.bus.Publish(events.KindDocumentActivated, id, "")
	return nil
}

// Active returns the currently selected document, or ErrNoActiveDocument.
func (r *Registry) Active(ctx context.Context) (*Document, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if snap.CurrentDocumentID == "" {
		return nil, ErrNoActiveDocument
	}
	i, ok := findDocument(snap.Documents, snap.CurrentDocumentID)
	if !ok {
		return nil, ErrNoActiveDocument
	}
	doc := snap.Documents[i]
	return &doc, nil
}

// Delete removes the document from the registry and cascades deletion to
// the payload and progress records. If the deleted document was active, the
// pointer moves to another existing document, or clears when none remain.
// Cascade failures are logged, not propagated: orphaned payloads are
// tolerated transiently and cleaned up on the next delete attempt.
func (r *Registry) Delete(ctx context.Context, id string) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	i, ok := findDocument(snap.Documents, id)
	if !ok {
		return ErrNotFound
	}

	snap.Documents = append(snap.Documents[:i], snap.Documents[i+1:]...)
	if snap.CurrentDocumentID == id {
		snap.CurrentDocumentID = ""
		if len(snap.Documents) > 0 {
			snap.CurrentDocumentID = snap.Documents[0].ID
		}
	}

	if err := r.persist(ctx, snap); err != nil {
		return err
	}

	for _, cascade := range r.cascades {
		if err := cascade.RemoveDocument(ctx, id); err != nil {
			r.logger.WarnContext(ctx, "cascade delete failed", "document_id", id, "error", err)
		}
	}

	r.metrics.IncDocumentsDeleted()
	r.bus.Publish(events.KindDocumentDeleted, id, "")
	return nil
}

// SetActiveSubforms replaces the document's enabled sub-form set. Called by
// the scope service after resolving activity flags; the caller emits the
// scope.changed event.
func (r *Registry) SetActiveSubforms(ctx context.Context, id string, subforms []string) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	i, ok := findDocument(snap.Documents, id)
	if !ok {
		return ErrNotFound
	}

	doc := &snap.Documents[i]
	doc.ActiveSubforms = subforms
	doc.Progress.Total = overallProgress(doc.ActiveSubforms, doc.Progress.Subforms)
	doc.UpdatedAt = time.Now()
	return r.persist(ctx, snap)
}

// SetProgress caches a sub-form's completion percentage on the document
// metadata and recomputes the derived total. Called by the progress
// tracker, which owns the authoritative records and emits the event.
func (r *Registry) SetProgress(ctx context.Context, id, subformName string, pct int) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	i, ok := findDocument(snap.Documents, id)
	if !ok {
		return ErrNotFound
	}

	doc := &snap.Documents[i]
	if doc.Progress.Subforms == nil {
		doc.Progress.Subforms = make(map[string]int)
	}
	doc.Progress.Subforms[subformName] = pct
	doc.Progress.Total = overallProgress(doc.ActiveSubforms, doc.Progress.Subforms)
	doc.UpdatedAt = time.Now()
	return r.persist(ctx, snap)
}

// Touch refreshes a document's updated_at. Payload writes use it to keep
// the registry and the document store consistent.
func (r *Registry) Touch(ctx context.Context, id string) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	i, ok := findDocument(snap.Documents, id)
	if !ok {
		return ErrNotFound
	}
	snap.Documents[i].UpdatedAt = time.Now()
	return r.persist(ctx, snap)
}

// load reads the registry snapshot. A missing record yields an empty
// current-version snapshot; corrupt bytes are treated as absent and logged,
// never propagated as a crash.
func (r *Registry) load(ctx context.Context) (Snapshot, error) {
	empty := Snapshot{SchemaVersion: SchemaVersion}

	raw, err := r.store.Get(ctx, RegistryKey)
	if errors.Is(err, kv.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load registry: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		r.logger.WarnContext(ctx, "corrupt registry snapshot, treating as empty", "error", err)
		return empty, nil
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	return snap, nil
}

func (r *Registry) persist(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := r.store.Set(ctx, RegistryKey, raw); err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			r.metrics.IncQuotaRejections()
		}
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

func findDocument(docs []Document, id string) (int, bool) {
	for i := range docs {
		if docs[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// overallProgress is the rounded mean over the active sub-forms; sub-forms
// without a recorded percentage count as 0.
func overallProgress(active []string, byForm map[string]int) int {
	if len(active) == 0 {
		return 0
	}
	sum := 0
	for _, name := range active {
		sum += byForm[name]
	}
	return int(math.Round(float64(sum) / float64(len(active))))
}
