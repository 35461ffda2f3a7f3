package migration_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pmohub/internal/dossier"
	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/migration"
	"pmohub/internal/subform"
)

type EngineSuite struct {
	suite.Suite
	store    *kv.Memory
	registry *dossier.Registry
	payloads *dossier.PayloadStore
	engine   *migration.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.store = kv.NewMemory(0)
	bus := events.NewBus(logger, nil, 16)

	var err error
	s.registry, err = dossier.NewRegistry(s.store, bus, logger, nil)
	s.Require().NoError(err)
	s.payloads, err = dossier.NewPayloadStore(s.store, s.registry, subform.NewRegistry(), bus, logger, nil, 0)
	s.Require().NoError(err)
	s.engine, err = migration.NewEngine(s.store, s.registry, s.payloads, bus, logger, nil)
	s.Require().NoError(err)
}

func (s *EngineSuite) seedLegacy(base map[string]any) {
	ctx := context.Background()
	raw, err := json.Marshal(base)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Set(ctx, migration.LegacyBaseKey, raw))
}

func (s *EngineSuite) TestRun() {
	ctx := context.Background()

	s.Run("fresh store is a no-op", func() {
		s.Require().NoError(s.engine.Run(ctx))
		count, err := s.registry.Count(ctx)
		s.Require().NoError(err)
		s.Zero(count)
	})
}

func (s *EngineSuite) TestMigratesLegacyLayout() {
	ctx := context.Background()
	s.seedLegacy(map[string]any{
		"cpf":                   "123.456.789-00",
		"nome_produtor":         "Maria da Silva",
		"nome_unidade_producao": "Sítio Boa Vista",
		"ano_vigente":           2025,
		"municipio":             "Ibiúna",
	})
	annex, err := json.Marshal(map[string]any{"culturas": []string{"alface"}})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Set(ctx, "anexo_producao_vegetal", annex))

	s.Require().NoError(s.engine.Run(ctx))

	s.Run("creates exactly one document with extracted metadata", func() {
		docs, err := s.registry.List(ctx)
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal("2025-12345678900-sitio-boa-vista", docs[0].ID)
		s.Equal("Maria da Silva", docs[0].DisplayName)
		s.Equal(2025, docs[0].ValidityYear)
	})

	s.Run("copies legacy subform content into the payload", func() {
		base, err := s.payloads.Subform(ctx, "2025-12345678900-sitio-boa-vista", subform.Base)
		s.Require().NoError(err)
		s.Equal("Ibiúna", base["municipio"])

		vegetal, err := s.payloads.Subform(ctx, "2025-12345678900-sitio-boa-vista", subform.Vegetal)
		s.Require().NoError(err)
		s.NotNil(vegetal["culturas"])
	})

	s.Run("legacy keys remain readable", func() {
		_, err := s.store.Get(ctx, migration.LegacyBaseKey)
		s.NoError(err)
		_, err = s.store.Get(ctx, "anexo_producao_vegetal")
		s.NoError(err)
	})

	s.Run("second run is skipped even with the legacy key present", func() {
		s.Require().NoError(s.engine.Run(ctx))
		count, err := s.registry.Count(ctx)
		s.Require().NoError(err)
		s.Equal(1, count)
	})
}

func (s *EngineSuite) TestFallbackDefaults() {
	ctx := context.Background()
	// No tax id, no unit name, no year: every fallback engages.
	s.seedLegacy(map[string]any{"municipio": "Registro"})

	s.Require().NoError(s.engine.Run(ctx))

	docs, err := s.registry.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("Produtor", docs[0].DisplayName)
	s.Equal("Unidade 1", docs[0].UnitName)
	s.Equal(time.Now().Year(), docs[0].ValidityYear)
	s.Contains(docs[0].ID, "sem-cpf")
	s.Contains(docs[0].ID, "unidade-1")
}

func (s *EngineSuite) TestCorruptLegacyRecord() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, migration.LegacyBaseKey, []byte("{broken")))

	s.Require().NoError(s.engine.Run(ctx))

	count, err := s.registry.Count(ctx)
	s.Require().NoError(err)
	s.Zero(count)

	// The legacy record is left untouched for inspection.
	raw, err := s.store.Get(ctx, migration.LegacyBaseKey)
	s.Require().NoError(err)
	s.Equal([]byte("{broken"), raw)
}

func (s *EngineSuite) TestSkipsWhenRegistryPopulated() {
	ctx := context.Background()
	_, err := s.registry.Create(ctx, dossier.NewDocument{
		TaxID: "999", DisplayName: "Existing", UnitName: "Gleba", ValidityYear: 2026,
	})
	s.Require().NoError(err)
	s.seedLegacy(map[string]any{"nome_produtor": "Legacy"})

	s.Require().NoError(s.engine.Run(ctx))

	count, err := s.registry.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}
