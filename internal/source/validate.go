// internal/source/validate.go
package source

import (
	"fmt"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/navigator"
	"oraclebackend/internal/offering"
)

// ValidateAlternative rejects malformed requirement data before it reaches
// the core: unknown category, empty offering id, non-positive quantity.
func ValidateAlternative(alt offering.Alternative) error {
	if !alt.Category.Valid() {
		return fmt.Errorf("unknown category %q", alt.Category)
	}
	if alt.OfferingID == "" {
		return fmt.Errorf("missing offering id")
	}
	if alt.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", alt.Quantity)
	}
	return nil
}

// ValidateAlternatives validates a whole requirement set, reporting the
// position of the first bad record.
func ValidateAlternatives(alts []offering.Alternative) error {
	for i, alt := range alts {
		if err := ValidateAlternative(alt); err != nil {
			return fmt.Errorf("alternative %d (%s): %w", i, alt.OfferingID, err)
		}
	}
	return nil
}

// ValidateEntry rejects catalog entries without an id or with a negative
// price.
func ValidateEntry(e catalog.Entry) error {
	if e.ID == "" {
		return fmt.Errorf("missing catalog entry id")
	}
	if e.Price < 0 {
		return fmt.Errorf("negative price %f for %s", e.Price, e.ID)
	}
	return nil
}

// ValidateWalletEntry rejects wallet rows with an empty id or negative
// quantity. Zero quantities are legal — owning none of something is a
// normal wallet state.
func ValidateWalletEntry(e offering.WalletEntry) error {
	if e.OfferingID == "" {
		return fmt.Errorf("missing wallet offering id")
	}
	if e.Quantity < 0 {
		return fmt.Errorf("negative quantity %d for %s", e.Quantity, e.OfferingID)
	}
	return nil
}

// ValidateChoice checks a consultation choice and its embedded requirement
// set. Legacy offering-id lists are allowed alongside nothing else; they are
// synthesized later by the navigator's resolution policy.
func ValidateChoice(c navigator.Choice) error {
	if c.ID == "" {
		return fmt.Errorf("missing choice id")
	}
	if c.RubricID == "" {
		return fmt.Errorf("choice %s has no rubric", c.ID)
	}
	if err := ValidateAlternatives(c.Alternatives); err != nil {
		return fmt.Errorf("choice %s: %w", c.ID, err)
	}
	for i, id := range c.LegacyOfferings {
		if id == "" {
			return fmt.Errorf("choice %s: legacy offering %d is empty", c.ID, i)
		}
	}
	return nil
}
