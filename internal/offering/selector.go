// internal/offering/selector.go
package offering

import "errors"

// ErrUnknownAlternative is returned by Select for an offering id that is not
// part of the current requirement set.
var ErrUnknownAlternative = errors.New("offering is not part of the requirement set")

// MarketSink is notified when the user leaves the selector to acquire more
// offerings. Routing is owned by the navigation layer; the signal must not
// mutate selector state.
type MarketSink interface {
	GoToMarket()
}

// Selector holds the selection state for one requirement set: at most one
// chosen offering id, plus the active category tab. The active category is a
// display concern only — the selection survives tab switches, because the
// alternatives are fungible substitutes for a single requirement.
type Selector struct {
	alternatives []Alternative
	byID         map[string]Alternative
	wallet       *Wallet
	selectedID   string
	active       Category
}

// NewSelector creates a selector over a requirement set and a wallet
// snapshot. No alternative starts selected; the animal tab is active first,
// matching the category display order.
func NewSelector(alts []Alternative, wallet *Wallet) *Selector {
	s := &Selector{
		wallet: wallet,
		active: CategoryAnimal,
	}
	s.setAlternatives(alts)
	return s
}

func (s *Selector) setAlternatives(alts []Alternative) {
	s.alternatives = make([]Alternative, len(alts))
	copy(s.alternatives, alts)
	s.byID = make(map[string]Alternative, len(alts))
	for _, alt := range alts {
		if _, seen := s.byID[alt.OfferingID]; !seen {
			s.byID[alt.OfferingID] = alt
		}
	}
	s.selectedID = ""
}

// SetAlternatives replaces the requirement set, e.g. when the user moves to
// a different consultation. The previous selection is cleared — it belonged
// to the old requirement.
func (s *Selector) SetAlternatives(alts []Alternative) {
	s.setAlternatives(alts)
}

// UpdateWallet replaces the wallet snapshot. Sufficiency is derived, so the
// selection itself is untouched; CanProceed simply answers differently.
func (s *Selector) UpdateWallet(entries []WalletEntry) {
	s.wallet = BuildWallet(entries)
}

// SelectCategory switches the visible category tab. Display only; the
// current selection is kept even when it lives under another tab.
func (s *Selector) SelectCategory(c Category) {
	if c.Valid() {
		s.active = c
	}
}

// ActiveCategory returns the category tab currently displayed.
func (s *Selector) ActiveCategory() Category {
	return s.active
}

// Select records the user's choice. An id outside the requirement set is
// rejected with ErrUnknownAlternative and leaves the state unchanged. An
// insufficient alternative is still recorded — the UI shows it with an
// "insufficient" badge — but CanProceed stays false.
func (s *Selector) Select(offeringID string) error {
	if _, ok := s.byID[offeringID]; !ok {
		return ErrUnknownAlternative
	}
	s.selectedID = offeringID
	return nil
}

// Clear drops the current selection.
func (s *Selector) Clear() {
	s.selectedID = ""
}

// SelectedID returns the chosen offering id, empty when nothing is selected.
func (s *Selector) SelectedID() string {
	return s.selectedID
}

// Selected returns the chosen alternative, if any.
func (s *Selector) Selected() (Alternative, bool) {
	if s.selectedID == "" {
		return Alternative{}, false
	}
	alt, ok := s.byID[s.selectedID]
	return alt, ok
}

// CanProceed reports whether redemption may move forward: a selection exists
// and the wallet covers its required quantity.
func (s *Selector) CanProceed() bool {
	alt, ok := s.Selected()
	return ok && Sufficient(alt, s.wallet)
}

// Alternatives returns the requirement set in its original order.
func (s *Selector) Alternatives() []Alternative {
	out := make([]Alternative, len(s.alternatives))
	copy(out, s.alternatives)
	return out
}

// Groups returns the requirement set partitioned by category.
func (s *Selector) Groups() map[Category][]Alternative {
	return GroupByCategory(s.alternatives)
}

// Wallet returns the current wallet snapshot index.
func (s *Selector) Wallet() *Wallet {
	return s.wallet
}

// GoToMarket signals the navigation sink that the user wants to acquire more
// offerings. Selector state is deliberately untouched: on return the wallet
// snapshot must be refreshed and sufficiency re-derived.
func (s *Selector) GoToMarket(sink MarketSink) {
	if sink != nil {
		sink.GoToMarket()
	}
}
