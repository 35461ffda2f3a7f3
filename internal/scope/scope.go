// Package scope maps a producer's declared activities onto the set of
// annex sub-forms enabled for a document. The activity table is static
// configuration; the per-document selection is the only persisted state.
package scope

import (
	"pmohub/internal/subform"
)

// Declared-activity flags.
const (
	ActivityHortalicas          = "hortalicas"
	ActivityFrutas              = "frutas"
	ActivityGraos               = "graos"
	ActivityPlantasMedicinais   = "plantas-medicinais"
	ActivityCogumelos           = "cogumelos"
	ActivityPecuaria            = "pecuaria"
	ActivityApicultura          = "apicultura"
	ActivityProcessamento       = "processamento"
	ActivityProcessamentoMinimo = "processamento-minimo"
)

// Table maps each activity to the annex it enables. Several activities map
// to the same annex; set semantics collapse the duplicates.
var Table = map[string]string{
	ActivityHortalicas:          subform.Vegetal,
	ActivityFrutas:              subform.Vegetal,
	ActivityGraos:               subform.Vegetal,
	ActivityPlantasMedicinais:   subform.Vegetal,
	ActivityCogumelos:           subform.Cogumelo,
	ActivityPecuaria:            subform.Animal,
	ActivityApicultura:          subform.Apicultura,
	ActivityProcessamento:       subform.Processamento,
	ActivityProcessamentoMinimo: subform.ProcessamentoMinimo,
}

// Selection is the per-document record of declared activities plus the
// intends-to-certify override.
type Selection struct {
	Activities       map[string]bool `json:"activities"`
	IntendsToCertify bool            `json:"intends_to_certify"`
}

// Resolve computes the enabled sub-form set for a selection, in canonical
// order. Declared activities are authoritative: when at least one annex
// resolves, the certify flag is ignored. With no resolved annexes the base
// form alone is offered, unless the producer also does not intend to
// certify, in which case nothing is.
//
// Unknown activity names are ignored so selections written by a newer flag
// table still resolve.
func Resolve(sel Selection) []string {
	enabled := map[string]bool{subform.Base: true}
	annexes := 0
	for activity, declared := range sel.Activities {
		if !declared {
			continue
		}
		annex, ok := Table[activity]
		if !ok {
			continue
		}
		if !enabled[annex] {
			enabled[annex] = true
			annexes++
		}
	}

	if annexes == 0 && !sel.IntendsToCertify {
		return []string{}
	}

	ordered := make([]string, 0, annexes+1)
	for _, name := range subform.All {
		if enabled[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
