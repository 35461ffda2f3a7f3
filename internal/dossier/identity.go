package dossier

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback segments used when an id component normalizes to nothing. The
// migration engine documents the same defaults.
const (
	fallbackTaxSegment  = "sem-cpf"
	fallbackUnitSegment = "unidade-1"
)

// GenerateID derives a document's stable identity from producer tax id,
// validity year, and production-unit name. It is deterministic and pure:
// equivalent inputs up to punctuation, case, accents, and spacing yield the
// same id, which is what makes document creation idempotent.
func GenerateID(taxID string, year int, unitName string) string {
	tax := stripNonAlphanumeric(taxID)
	if tax == "" {
		tax = fallbackTaxSegment
	}
	unit := Slugify(unitName)
	if unit == "" {
		unit = fallbackUnitSegment
	}
	return fmt.Sprintf("%d-%s-%s", year, tax, unit)
}

// Slugify case-folds, strips diacritics, collapses runs of non-alphanumeric
// characters into single hyphens, and trims leading/trailing hyphens.
func Slugify(s string) string {
	s = removeDiacritics(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		} else {
			pendingHyphen = true
		}
	}
	return b.String()
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
