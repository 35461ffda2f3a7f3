// Package subform defines the named sections of a dossier and the
// required-field schema each one carries. Sub-form field data stays opaque
// to the rest of the core; the schema only knows which fields must be
// filled and what "filled" means.
package subform

import (
	"fmt"
)

// Sub-form names. Base is mandatory on every document; the annexes are
// enabled per document by the scope resolver.
const (
	Base                = "pmo-base"
	Vegetal             = "anexo-vegetal"
	Cogumelo            = "anexo-cogumelo"
	Animal              = "anexo-animal"
	Apicultura          = "anexo-apicultura"
	Processamento       = "anexo-processamento"
	ProcessamentoMinimo = "anexo-processamento-minimo"
)

// All lists every sub-form in canonical display order.
var All = []string{
	Base,
	Vegetal,
	Cogumelo,
	Animal,
	Apicultura,
	Processamento,
	ProcessamentoMinimo,
}

// Schema describes one sub-form: its name and the fields that count toward
// completion progress.
type Schema struct {
	Name     string
	Required []string
}

// Validate performs a shape check on sub-form field data. Field semantics
// (CPF digits, postal codes) belong to the validation collaborator, not
// here; the store only refuses records it could never index.
func (s Schema) Validate(fields map[string]any) error {
	if fields == nil {
		return fmt.Errorf("subform %s: fields must not be nil", s.Name)
	}
	for name := range fields {
		if name == "" {
			return fmt.Errorf("subform %s: empty field name", s.Name)
		}
	}
	return nil
}

// Registry holds the per-sub-form schemas registered at startup.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds the default schema registry.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(All))}
	for _, s := range defaults {
		r.schemas[s.Name] = s
	}
	return r
}

// Get returns the schema for a sub-form name.
func (r *Registry) Get(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Known reports whether the name is a registered sub-form.
func (r *Registry) Known(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// Filled reports whether a field value counts as filled for progress
// purposes: non-nil, non-empty string, non-false, non-empty collection.
func Filled(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return value != ""
	case bool:
		return value
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	default:
		return true
	}
}

var defaults = []Schema{
	{
		Name: Base,
		Required: []string{
			"nome_produtor",
			"cpf",
			"endereco",
			"municipio",
			"uf",
			"nome_unidade_producao",
			"ano_vigente",
			"area_total",
			"historico_utilizacao",
			"croqui_propriedade",
		},
	},
	{
		Name: Vegetal,
		Required: []string{
			"culturas",
			"origem_sementes",
			"manejo_solo",
			"controle_pragas",
			"adubacao",
			"rotacao_culturas",
		},
	},
	{
		Name: Cogumelo,
		Required: []string{
			"especies_cultivadas",
			"origem_inoculo",
			"substrato",
			"local_producao",
		},
	},
	{
		Name: Animal,
		Required: []string{
			"especies_criadas",
			"origem_animais",
			"alimentacao",
			"instalacoes",
			"manejo_sanitario",
			"bem_estar",
		},
	},
	{
		Name: Apicultura,
		Required: []string{
			"numero_colmeias",
			"origem_enxames",
			"area_forrageamento",
			"alimentacao_artificial",
			"manejo_sanitario",
		},
	},
	{
		Name: Processamento,
		Required: []string{
			"produtos_processados",
			"fornecedores",
			"etapas_processamento",
			"higienizacao",
			"rotulagem",
			"controle_qualidade",
		},
	},
	{
		Name: ProcessamentoMinimo,
		Required: []string{
			"produtos",
			"procedencia_materia_prima",
			"higienizacao",
			"embalagem",
		},
	},
}
