// internal/redemption/view.go
package redemption

import (
	"oraclebackend/internal/offering"
)

// AlternativeView is one requirement alternative resolved for display:
// catalog name/icon/price plus the wallet-derived sufficiency signals. An
// insufficient alternative is a normal displayable state, visually distinct
// from "no selection yet".
type AlternativeView struct {
	Category   offering.Category `json:"category"`
	OfferingID string            `json:"offering_id"`
	Quantity   int               `json:"quantity"`
	Name       string            `json:"name"`
	Icon       string            `json:"icon"`
	Price      float64           `json:"price"`
	InCatalog  bool              `json:"in_catalog"`
	Owned      int               `json:"owned"`
	Sufficient bool              `json:"sufficient"`
	Selected   bool              `json:"selected"`
}

// View is the full flow snapshot the UI renders from.
type View struct {
	FlowID         string                                  `json:"flow_id"`
	ConsultationID string                                  `json:"consultation_id"`
	State          State                                   `json:"state"`
	ActiveCategory offering.Category                       `json:"active_category"`
	SelectedID     string                                  `json:"selected_id,omitempty"`
	CanProceed     bool                                    `json:"can_proceed"`
	Groups         map[offering.Category][]AlternativeView `json:"groups"`
	Notice         *Notice                                 `json:"notice,omitempty"`
}

// View renders the current flow state. Read-only; safe to call in any state.
func (f *Flow) View() View {
	// Notice() prunes an expired notice under its own lock; take it first.
	notice := f.Notice()

	f.mu.Lock()
	defer f.mu.Unlock()

	wallet := f.selector.Wallet()
	selected := f.selector.SelectedID()

	groups := make(map[offering.Category][]AlternativeView, 3)
	for cat, alts := range f.selector.Groups() {
		views := make([]AlternativeView, 0, len(alts))
		for _, alt := range alts {
			res := offering.Resolve(f.catalog, alt)
			views = append(views, AlternativeView{
				Category:   alt.Category,
				OfferingID: alt.OfferingID,
				Quantity:   alt.Quantity,
				Name:       res.Name,
				Icon:       res.Icon,
				Price:      res.Price,
				InCatalog:  res.InCatalog,
				Owned:      wallet.Quantity(alt.OfferingID),
				Sufficient: offering.Sufficient(alt, wallet),
				Selected:   alt.OfferingID == selected,
			})
		}
		groups[cat] = views
	}

	return View{
		FlowID:         f.ID,
		ConsultationID: f.ConsultationID,
		State:          f.state,
		ActiveCategory: f.selector.ActiveCategory(),
		SelectedID:     selected,
		CanProceed:     f.state == StateSelecting && f.selector.CanProceed(),
		Groups:         groups,
		Notice:         notice,
	}
}
