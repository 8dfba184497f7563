// Package policy holds the pure routing rules of the memory engine: the
// closed category set, the analyzed-type enum, and the mapping from analyzed
// types to storage categories. No I/O, no state.
package policy

import "strings"

// AnalyzedType is the semantic class the analyzer assigns to a concept.
type AnalyzedType string

const (
	TypeFaktenwissen       AnalyzedType = "faktenwissen"
	TypeProzeduralesWissen AnalyzedType = "prozedurales_wissen"
	TypeErlebnisse         AnalyzedType = "erlebnisse"
	TypeBewusstsein        AnalyzedType = "bewusstsein"
	TypeHumor              AnalyzedType = "humor"
	TypeZusammenarbeit     AnalyzedType = "zusammenarbeit"
)

// Categories valid at the ingest boundary.
const (
	CategoryFaktenwissen       = "faktenwissen"
	CategoryProzeduralesWissen = "prozedurales_wissen"
	CategoryErlebnisse         = "erlebnisse"
	CategoryBewusstsein        = "bewusstsein"
	CategoryHumor              = "humor"
	CategoryZusammenarbeit     = "zusammenarbeit"
	CategoryForgotten          = "forgotten_memories"
	CategoryKern               = "kernerinnerungen"
	CategoryShortMemory        = "short_memory"
)

// Storage-only categories: produced by the type map, never accepted as
// caller input.
const (
	CategoryProgrammieren = "programmieren"
	CategoryPhilosophie   = "philosophie"
)

var validCategories = []string{
	CategoryFaktenwissen,
	CategoryProzeduralesWissen,
	CategoryErlebnisse,
	CategoryBewusstsein,
	CategoryHumor,
	CategoryZusammenarbeit,
	CategoryForgotten,
	CategoryKern,
	CategoryShortMemory,
}

var validCategorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(validCategories))
	for _, c := range validCategories {
		m[c] = struct{}{}
	}
	return m
}()

// ValidCategories returns the closed ingest category set in stable order.
func ValidCategories() []string {
	out := make([]string, len(validCategories))
	copy(out, validCategories)
	return out
}

// IsValidCategory reports whether c may be supplied as a record category.
func IsValidCategory(c string) bool {
	_, ok := validCategorySet[strings.TrimSpace(c)]
	return ok
}

var analyzedTypes = []AnalyzedType{
	TypeFaktenwissen,
	TypeProzeduralesWissen,
	TypeErlebnisse,
	TypeBewusstsein,
	TypeHumor,
	TypeZusammenarbeit,
}

// AllAnalyzedTypes returns the analyzer's type vocabulary in stable order.
func AllAnalyzedTypes() []AnalyzedType {
	out := make([]AnalyzedType, len(analyzedTypes))
	copy(out, analyzedTypes)
	return out
}

// ParseAnalyzedType normalizes a raw analyzer string. Unknown values return
// ("", false); callers decide the fallback.
func ParseAnalyzedType(s string) (AnalyzedType, bool) {
	t := AnalyzedType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range analyzedTypes {
		if t == known {
			return known, true
		}
	}
	return "", false
}

// IsFactual reports whether t is a factual type. Factual records never reach
// permanent storage or the recency cache; their concepts live only in the
// vector and graph indexes.
func IsFactual(t AnalyzedType) bool {
	return t == TypeFaktenwissen || t == TypeProzeduralesWissen
}

var storageMap = map[AnalyzedType]string{
	TypeFaktenwissen:       CategoryKern,
	TypeProzeduralesWissen: CategoryProgrammieren,
	TypeErlebnisse:         CategoryKern,
	TypeBewusstsein:        CategoryPhilosophie,
	TypeHumor:              CategoryHumor,
	TypeZusammenarbeit:     CategoryZusammenarbeit,
}

// MapToStorage maps an analyzed type to the category a permanent record is
// stored under. Unknown types map to kernerinnerungen.
func MapToStorage(t AnalyzedType) string {
	if c, ok := storageMap[t]; ok {
		return c
	}
	return CategoryKern
}
