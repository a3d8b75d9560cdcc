// internal/offering/offering.go
package offering

import (
	"oraclebackend/internal/catalog"
)

// Category classifies a ritual offering. The enumeration is fixed; values
// outside it are rejected at the ingestion boundary, so core code may assume
// every Alternative carries one of these three.
type Category string

const (
	CategoryAnimal   Category = "animal"
	CategoryVegetal  Category = "vegetal"
	CategoryBeverage Category = "beverage"
)

// Categories returns the fixed enumeration in display order.
func Categories() []Category {
	return []Category{CategoryAnimal, CategoryVegetal, CategoryBeverage}
}

// Valid reports whether c is one of the three known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAnimal, CategoryVegetal, CategoryBeverage:
		return true
	}
	return false
}

// Glyph returns the generic icon for the category, used when an offering
// cannot be resolved against the catalog.
func (c Category) Glyph() string {
	switch c {
	case CategoryAnimal:
		return "🐾"
	case CategoryVegetal:
		return "🌿"
	case CategoryBeverage:
		return "🍶"
	}
	return "🕯️"
}

// Alternative is one acceptable way to satisfy a consultation's offering
// requirement: a category, a specific catalog item, and a quantity. Name and
// Icon are optional cached display values used as fallbacks when the catalog
// cannot resolve the id.
type Alternative struct {
	Category   Category `json:"category"`
	OfferingID string   `json:"offering_id"`
	Quantity   int      `json:"quantity"`
	Name       string   `json:"name,omitempty"`
	Icon       string   `json:"icon,omitempty"`
}

// GroupByCategory partitions a requirement set into the three fixed
// categories. All three keys are always present so UI tab counts stay
// stable, and input order is preserved within each group.
func GroupByCategory(alts []Alternative) map[Category][]Alternative {
	groups := map[Category][]Alternative{
		CategoryAnimal:   {},
		CategoryVegetal:  {},
		CategoryBeverage: {},
	}
	for _, alt := range alts {
		groups[alt.Category] = append(groups[alt.Category], alt)
	}
	return groups
}

// WalletEntry pairs an offering id with the quantity the acting user owns.
type WalletEntry struct {
	OfferingID string `json:"offering_id"`
	Quantity   int    `json:"quantity"`
}

// Wallet is an id -> owned-quantity index over one wallet snapshot. The
// snapshot is treated as immutable; a refreshed wallet means a new Wallet.
type Wallet struct {
	quantities map[string]int
}

// BuildWallet indexes a wallet snapshot. Duplicate ids are tolerated; the
// later entry wins, matching the catalog index policy.
func BuildWallet(entries []WalletEntry) *Wallet {
	w := &Wallet{quantities: make(map[string]int, len(entries))}
	for _, e := range entries {
		w.quantities[e.OfferingID] = e.Quantity
	}
	return w
}

// Quantity returns the owned quantity for id, zero when absent.
func (w *Wallet) Quantity(id string) int {
	if w == nil {
		return 0
	}
	return w.quantities[id]
}

// Sufficient reports whether the wallet holds enough of alt's offering to
// satisfy it. Pure; missing wallet entries count as zero.
func Sufficient(alt Alternative, w *Wallet) bool {
	return w.Quantity(alt.OfferingID) >= alt.Quantity
}

// Resolved is an Alternative joined with its catalog entry for read-only
// presentation.
type Resolved struct {
	Alternative Alternative `json:"alternative"`
	Name        string      `json:"name"`
	Icon        string      `json:"icon"`
	Price       float64     `json:"price"`
	InCatalog   bool        `json:"in_catalog"`
}

// Resolve attaches display name, icon and price to alt. Unknown catalog ids
// degrade to the alternative's cached display values, then to the generic
// fallback ("Offering <id>" plus the category glyph). Never an error.
func Resolve(ix *catalog.Index, alt Alternative) Resolved {
	if entry, ok := ix.Get(alt.OfferingID); ok {
		return Resolved{
			Alternative: alt,
			Name:        entry.Name,
			Icon:        entry.Icon,
			Price:       entry.Price,
			InCatalog:   true,
		}
	}

	fb := catalog.Fallback(alt.OfferingID, alt.Category.Glyph())
	name := alt.Name
	if name == "" {
		name = fb.Name
	}
	icon := alt.Icon
	if icon == "" {
		icon = fb.Icon
	}
	return Resolved{Alternative: alt, Name: name, Icon: icon}
}

// ResolveAll resolves a whole requirement set, preserving order.
func ResolveAll(ix *catalog.Index, alts []Alternative) []Resolved {
	out := make([]Resolved, 0, len(alts))
	for _, alt := range alts {
		out = append(out, Resolve(ix, alt))
	}
	return out
}
