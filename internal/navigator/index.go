// internal/navigator/index.go
package navigator

import (
	"oraclebackend/internal/offering"
)

// Rubric is a thematic grouping of consultation choices, used by the admin
// association browser. Read-only reference data.
type Rubric struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// RubricWithCount annotates a rubric with its number of consultation
// choices, derived from the choices index.
type RubricWithCount struct {
	Rubric
	Count int `json:"count"`
}

// Choice is one consultation choice inside a rubric. A choice carries its
// requirement set either as an explicit alternatives list or, in legacy
// records, as a flat list of offering ids.
type Choice struct {
	ID              string                 `json:"id"`
	RubricID        string                 `json:"rubric_id"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	Alternatives    []offering.Alternative `json:"alternatives,omitempty"`
	LegacyOfferings []string               `json:"offerings,omitempty"`
}

// ConsultationsByRubric indexes choices by their owning rubric, preserving
// input order within each rubric. Pure; rebuilt per snapshot.
func ConsultationsByRubric(choices []Choice) map[string][]Choice {
	byRubric := make(map[string][]Choice)
	for _, c := range choices {
		byRubric[c.RubricID] = append(byRubric[c.RubricID], c)
	}
	return byRubric
}

// RubricsWithCounts annotates each rubric with its choice count. Rubrics
// with no choices get zero, which is a normal, displayable state.
func RubricsWithCounts(rubrics []Rubric, byRubric map[string][]Choice) []RubricWithCount {
	out := make([]RubricWithCount, 0, len(rubrics))
	for _, r := range rubrics {
		out = append(out, RubricWithCount{Rubric: r, Count: len(byRubric[r.ID])})
	}
	return out
}

// RequirementSet resolves a choice's requirement set:
//
//  1. an explicit alternatives list is used as-is;
//  2. else a legacy flat offering-id list is synthesized into one
//     alternative per id, category animal, quantity 1 — the historical
//     default, kept even though it mislabels vegetal and beverage items,
//     because the true category cannot be inferred from an id alone;
//  3. else the set is empty.
func RequirementSet(c Choice) []offering.Alternative {
	if len(c.Alternatives) > 0 {
		out := make([]offering.Alternative, len(c.Alternatives))
		copy(out, c.Alternatives)
		return out
	}
	if len(c.LegacyOfferings) > 0 {
		out := make([]offering.Alternative, 0, len(c.LegacyOfferings))
		for _, id := range c.LegacyOfferings {
			out = append(out, offering.Alternative{
				Category:   offering.CategoryAnimal,
				OfferingID: id,
				Quantity:   1,
			})
		}
		return out
	}
	return nil
}
