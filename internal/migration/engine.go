// Package migration upgrades the legacy single-document storage layout
// (version 0: one flat base-form record plus separately keyed annex
// records, no registry) into the registry-based multi-document model. The
// upgrade runs once at process start and preserves the legacy keys so a
// failed run can always be retried without data loss.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"pmohub/internal/dossier"
	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/platform/metrics"
	"pmohub/internal/subform"
)

// LegacyBaseKey is the version-0 flat base-form record.
const LegacyBaseKey = "pmo"

// legacySubforms maps version-0 annex keys to current sub-form names. The
// base key doubles as the pmo-base payload source.
var legacySubforms = []struct {
	key  string
	name string
}{
	{LegacyBaseKey, subform.Base},
	{"anexo_producao_vegetal", subform.Vegetal},
	{"anexo_cogumelo", subform.Cogumelo},
	{"anexo_producao_animal", subform.Animal},
	{"anexo_apicultura", subform.Apicultura},
	{"anexo_processamento", subform.Processamento},
	{"anexo_processamento_minimo", subform.ProcessamentoMinimo},
}

// Fallbacks for legacy records missing identifying fields.
const (
	fallbackDisplayName = "Produtor"
	fallbackUnitName    = "Unidade 1"
)

// Engine performs the one-time v0 -> v1 upgrade.
type Engine struct {
	store    kv.Store
	registry *dossier.Registry
	payloads *dossier.PayloadStore
	bus      *events.Bus
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewEngine(
	store kv.Store,
	registry *dossier.Registry,
	payloads *dossier.PayloadStore,
	bus *events.Bus,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("migration: kv store is required")
	}
	if registry == nil {
		return nil, errors.New("migration: registry is required")
	}
	if payloads == nil {
		return nil, errors.New("migration: payload store is required")
	}
	if bus == nil {
		return nil, errors.New("migration: event bus is required")
	}
	if logger == nil {
		return nil, errors.New("migration: logger is required")
	}
	return &Engine{
		store:    store,
		registry: registry,
		payloads: payloads,
		bus:      bus,
		logger:   logger.With("component", "migration"),
		metrics:  m,
	}, nil
}

// Run migrates the legacy layout if one is present and the registry is
// still empty. A registry with any document at all skips unconditionally,
// even when the legacy key remains: legacy keys are never deleted, so
// their presence alone does not mean an upgrade is pending. Errors leave
// the registry without the new document so the next boot retries.
func (e *Engine) Run(ctx context.Context) error {
	count, err := e.registry.Count(ctx)
	if err != nil {
		return fmt.Errorf("migration: count documents: %w", err)
	}
	if count > 0 {
		return nil
	}

	raw, err := e.store.Get(ctx, LegacyBaseKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration: read legacy record: %w", err)
	}

	var legacy map[string]any
	if err := json.Unmarshal(raw, &legacy); err != nil {
		e.logger.WarnContext(ctx, "legacy record is corrupt, skipping migration", "error", err)
		return nil
	}

	meta := extractMetadata(legacy)
	id, err := e.registry.Create(ctx, meta)
	if err != nil {
		return fmt.Errorf("migration: create document: %w", err)
	}
	e.logger.InfoContext(ctx, "migrating legacy layout", "document_id", id)

	for _, mapping := range legacySubforms {
		fields, ok, err := e.readLegacySubform(ctx, mapping.key)
		if err != nil {
			return fmt.Errorf("migration: read %s: %w", mapping.key, err)
		}
		if !ok {
			continue
		}
		if err := e.payloads.SetSubform(ctx, id, mapping.name, fields); err != nil {
			return fmt.Errorf("migration: copy %s: %w", mapping.key, err)
		}
	}

	e.metrics.IncMigrationsCompleted()
	e.bus.Publish(events.KindMigrationCompleted, id, "")
	return nil
}

func (e *Engine) readLegacySubform(ctx context.Context, key string) (map[string]any, bool, error) {
	raw, err := e.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		e.logger.WarnContext(ctx, "corrupt legacy subform record, skipping", "key", key, "error", err)
		return nil, false, nil
	}
	return fields, true, nil
}

// extractMetadata pulls document metadata out of the legacy base-form
// fields, falling back to documented defaults when fields are missing.
func extractMetadata(legacy map[string]any) dossier.NewDocument {
	taxID := stringField(legacy, "cpf")
	if taxID == "" {
		taxID = stringField(legacy, "cnpj")
	}
	displayName := stringField(legacy, "nome_produtor")
	if displayName == "" {
		displayName = fallbackDisplayName
	}
	unitName := stringField(legacy, "nome_unidade_producao")
	if unitName == "" {
		unitName = fallbackUnitName
	}
	year := intField(legacy, "ano_vigente")
	if year == 0 {
		year = time.Now().Year()
	}
	return dossier.NewDocument{
		TaxID:        taxID,
		DisplayName:  displayName,
		UnitName:     unitName,
		ValidityYear: year,
	}
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func intField(fields map[string]any, name string) int {
	switch v := fields[name].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
