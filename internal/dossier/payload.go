package dossier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/platform/metrics"
	"pmohub/internal/subform"
)

// PayloadStore persists per-document sub-form content and attached
// artifacts. It never creates registry entries: writes to unknown document
// ids soft-fail, reads of unknown ids yield an empty payload. Every write
// refreshes the owning document's updated_at through the registry so the
// two stores stay consistent.
type PayloadStore struct {
	store            kv.Store
	registry         *Registry
	schemas          *subform.Registry
	bus              *events.Bus
	logger           *slog.Logger
	metrics          *metrics.Metrics
	maxArtifactBytes int64
}

func NewPayloadStore(
	store kv.Store,
	registry *Registry,
	schemas *subform.Registry,
	bus *events.Bus,
	logger *slog.Logger,
	m *metrics.Metrics,
	maxArtifactBytes int64,
) (*PayloadStore, error) {
	if store == nil {
		return nil, errors.New("dossier: kv store is required")
	}
	if registry == nil {
		return nil, errors.New("dossier: registry is required")
	}
	if schemas == nil {
		return nil, errors.New("dossier: subform registry is required")
	}
	if bus == nil {
		return nil, errors.New("dossier: event bus is required")
	}
	if logger == nil {
		return nil, errors.New("dossier: logger is required")
	}
	return &PayloadStore{
		store:            store,
		registry:         registry,
		schemas:          schemas,
		bus:              bus,
		logger:           logger.With("component", "payloads"),
		metrics:          m,
		maxArtifactBytes: maxArtifactBytes,
	}, nil
}

// Get reads a document's payload. Missing and corrupt records both come
// back as an empty payload; corruption is logged.
func (p *PayloadStore) Get(ctx context.Context, documentID string) (Payload, error) {
	raw, err := p.store.Get(ctx, PayloadKey(documentID))
	if errors.Is(err, kv.ErrNotFound) {
		return EmptyPayload(), nil
	}
	if err != nil {
		return Payload{}, fmt.Errorf("load payload %s: %w", documentID, err)
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.logger.WarnContext(ctx, "corrupt payload, treating as empty",
			"document_id", documentID, "error", err)
		return EmptyPayload(), nil
	}
	if payload.Subforms == nil {
		payload.Subforms = make(map[string]map[string]any)
	}
	if payload.Artifacts == nil {
		payload.Artifacts = make(map[string]string)
	}
	return payload, nil
}

// Subform returns one sub-form's field data, or nil when nothing has been
// saved under that name.
func (p *PayloadStore) Subform(ctx context.Context, documentID, name string) (map[string]any, error) {
	payload, err := p.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return payload.Subforms[name], nil
}

// SetSubform replaces one sub-form's field data. The name must be a
// registered sub-form and the document must exist in the registry.
func (p *PayloadStore) SetSubform(ctx context.Context, documentID, name string, fields map[string]any) error {
	schema, ok := p.schemas.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubform, name)
	}
	if err := schema.Validate(fields); err != nil {
		return err
	}
	if _, err := p.registry.Get(ctx, documentID); err != nil {
		return err
	}

	payload, err := p.Get(ctx, documentID)
	if err != nil {
		return err
	}
	payload.Subforms[name] = fields
	if err := p.persist(ctx, documentID, payload); err != nil {
		return err
	}

	if err := p.registry.Touch(ctx, documentID); err != nil {
		p.logger.WarnContext(ctx, "failed to refresh updated_at",
			"document_id", documentID, "error", err)
	}
	p.bus.Publish(events.KindSubformSaved, documentID, name)
	return nil
}

// AttachArtifact stores a binary artifact (uploaded document, generated
// rendering) under the payload, base64-encoded.
func (p *PayloadStore) AttachArtifact(ctx context.Context, documentID, name string, blob []byte) error {
	if name == "" {
		return errors.New("dossier: artifact name is required")
	}
	if p.maxArtifactBytes > 0 && int64(len(blob)) > p.maxArtifactBytes {
		return fmt.Errorf("%w: %d bytes", ErrArtifactTooLarge, len(blob))
	}
	if _, err := p.registry.Get(ctx, documentID); err != nil {
		return err
	}

	payload, err := p.Get(ctx, documentID)
	if err != nil {
		return err
	}
	payload.Artifacts[name] = base64.StdEncoding.EncodeToString(blob)
	if err := p.persist(ctx, documentID, payload); err != nil {
		return err
	}

	if err := p.registry.Touch(ctx, documentID); err != nil {
		p.logger.WarnContext(ctx, "failed to refresh updated_at",
			"document_id", documentID, "error", err)
	}
	p.bus.Publish(events.KindArtifactAttached, documentID, "")
	return nil
}

// Artifact decodes and returns an attached artifact, or ErrNotFound.
func (p *PayloadStore) Artifact(ctx context.Context, documentID, name string) ([]byte, error) {
	payload, err := p.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	encoded, ok := payload.Artifacts[name]
	if !ok {
		return nil, kv.ErrNotFound
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return blob, nil
}

// RemoveDocument deletes the document's payload record. Registered as a
// registry delete cascade.
func (p *PayloadStore) RemoveDocument(ctx context.Context, documentID string) error {
	return p.store.Delete(ctx, PayloadKey(documentID))
}

func (p *PayloadStore) persist(ctx context.Context, documentID string, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload %s: %w", documentID, err)
	}
	if err := p.store.Set(ctx, PayloadKey(documentID), raw); err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			p.metrics.IncQuotaRejections()
		}
		return fmt.Errorf("persist payload %s: %w", documentID, err)
	}
	return nil
}
