// internal/catalog/catalog.go
package catalog

import "fmt"

// Entry is a single offering in the catalog. Reference data owned by the
// catalog service; read-only here.
type Entry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Icon     string   `json:"icon"`
	Price    float64  `json:"price"`
	AltPrice *float64 `json:"alt_price,omitempty"`
}

// Index is an id -> Entry lookup built once per catalog snapshot.
type Index struct {
	entries map[string]Entry
	order   []string
}

// BuildIndex builds the lookup from a flat catalog snapshot. Duplicate ids
// are tolerated; the later entry wins.
func BuildIndex(entries []Entry) *Index {
	ix := &Index{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, seen := ix.entries[e.ID]; !seen {
			ix.order = append(ix.order, e.ID)
		}
		ix.entries[e.ID] = e
	}
	return ix
}

// Get returns the entry for id and whether it exists in the catalog.
func (ix *Index) Get(id string) (Entry, bool) {
	if ix == nil {
		return Entry{}, false
	}
	e, ok := ix.entries[id]
	return e, ok
}

// Len returns the number of distinct offerings in the index.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// IDs returns the distinct offering ids in first-seen order.
func (ix *Index) IDs() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Fallback is the placeholder entry rendered for an id that is not in the
// catalog. Unknown ids are a display concern, never an error.
func Fallback(id, icon string) Entry {
	return Entry{
		ID:   id,
		Name: fmt.Sprintf("Offering %s", id),
		Icon: icon,
	}
}
