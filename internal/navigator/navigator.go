// internal/navigator/navigator.go
package navigator

import (
	"sync"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/offering"
)

// Level is the drill depth of the association browser.
type Level string

const (
	AtRubrics Level = "rubrics"
	AtChoices Level = "choices"
	AtDetails Level = "details"
)

// Position is the browser's current place in the Rubric -> Choice ->
// Requirement hierarchy. RubricID is set below AtRubrics, ChoiceID only at
// AtDetails.
type Position struct {
	Level    Level  `json:"level"`
	RubricID string `json:"rubric_id,omitempty"`
	ChoiceID string `json:"choice_id,omitempty"`
}

// View is what the browser renders at the current position. Exactly one of
// the level payloads is populated, matching Position.Level.
type View struct {
	Position Position            `json:"position"`
	Rubrics  []RubricWithCount   `json:"rubrics,omitempty"`
	Choices  []Choice            `json:"choices,omitempty"`
	Choice   *Choice             `json:"choice,omitempty"`
	Required []offering.Resolved `json:"required,omitempty"`
}

// Navigator is the three-level association browser over precomputed
// indexes. Navigation never errors: unknown rubrics show empty choice
// lists, unknown offerings resolve to catalog fallbacks.
type Navigator struct {
	mu       sync.Mutex
	rubrics  []Rubric
	byRubric map[string][]Choice
	counts   []RubricWithCount
	catalog  *catalog.Index
	pos      Position
}

// New builds a navigator positioned at the rubric list.
func New(rubrics []Rubric, choices []Choice, ix *catalog.Index) *Navigator {
	n := &Navigator{pos: Position{Level: AtRubrics}}
	n.setData(rubrics, choices, ix)
	return n
}

func (n *Navigator) setData(rubrics []Rubric, choices []Choice, ix *catalog.Index) {
	n.rubrics = rubrics
	n.byRubric = ConsultationsByRubric(choices)
	n.counts = RubricsWithCounts(rubrics, n.byRubric)
	n.catalog = ix
}

// SetData replaces the snapshots and rebuilds the indexes. The position is
// kept; a rubric or choice that disappeared simply renders as empty.
func (n *Navigator) SetData(rubrics []Rubric, choices []Choice, ix *catalog.Index) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setData(rubrics, choices, ix)
}

// OpenRubric drills into a rubric's consultation choices.
func (n *Navigator) OpenRubric(rubricID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pos = Position{Level: AtChoices, RubricID: rubricID}
}

// OpenChoice drills into one choice's resolved requirement details.
func (n *Navigator) OpenChoice(rubricID, choiceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pos = Position{Level: AtDetails, RubricID: rubricID, ChoiceID: choiceID}
}

// Back drills up one level. At the rubric list it is a no-op.
func (n *Navigator) Back() {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.pos.Level {
	case AtDetails:
		n.pos = Position{Level: AtChoices, RubricID: n.pos.RubricID}
	case AtChoices:
		n.pos = Position{Level: AtRubrics}
	}
}

// Position returns the current browser position.
func (n *Navigator) Position() Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos
}

// View renders the current level from the indexes.
func (n *Navigator) View() View {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := View{Position: n.pos}
	switch n.pos.Level {
	case AtRubrics:
		v.Rubrics = n.counts

	case AtChoices:
		// A rubric with no choices is a normal state, never an error.
		choices := n.byRubric[n.pos.RubricID]
		if choices == nil {
			choices = []Choice{}
		}
		v.Choices = choices

	case AtDetails:
		for _, c := range n.byRubric[n.pos.RubricID] {
			if c.ID == n.pos.ChoiceID {
				choice := c
				v.Choice = &choice
				v.Required = offering.ResolveAll(n.catalog, RequirementSet(c))
				break
			}
		}
		if v.Required == nil {
			v.Required = []offering.Resolved{}
		}
	}
	return v
}
