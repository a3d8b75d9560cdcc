// internal/source/file.go
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/navigator"
	"oraclebackend/internal/offering"
)

// Raw wire shapes. Identifier fields are deliberately loose — upstream
// exports carry several shapes — and collapse through NormalizeID before
// anything else sees them.

type rawEntry struct {
	ID       interface{} `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Icon     string      `json:"icon" yaml:"icon"`
	Price    float64     `json:"price" yaml:"price"`
	AltPrice *float64    `json:"alt_price,omitempty" yaml:"alt_price,omitempty"`
}

type rawAlternative struct {
	Category string      `json:"category" yaml:"category"`
	Offering interface{} `json:"offering" yaml:"offering"`
	Quantity int         `json:"quantity" yaml:"quantity"`
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	Icon     string      `json:"icon,omitempty" yaml:"icon,omitempty"`
}

type rawChoice struct {
	ID           interface{}      `json:"id" yaml:"id"`
	RubricID     interface{}      `json:"rubric_id" yaml:"rubric_id"`
	Title        string           `json:"title" yaml:"title"`
	Description  string           `json:"description,omitempty" yaml:"description,omitempty"`
	Alternatives []rawAlternative `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	Offerings    []interface{}    `json:"offerings,omitempty" yaml:"offerings,omitempty"`
}

type rawRubric struct {
	ID          interface{} `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
}

type rawWalletEntry struct {
	Offering interface{} `json:"offering" yaml:"offering"`
	Quantity int         `json:"quantity" yaml:"quantity"`
}

type rawSnapshot struct {
	Offerings []rawEntry                  `json:"offerings" yaml:"offerings"`
	Rubrics   []rawRubric                 `json:"rubrics" yaml:"rubrics"`
	Choices   []rawChoice                 `json:"choices" yaml:"choices"`
	Wallets   map[string][]rawWalletEntry `json:"wallets" yaml:"wallets"`
}

// FileSource serves all source interfaces from one snapshot document, JSON
// or YAML by extension. Used for fixtures and development; production wiring
// uses the database-backed source.
type FileSource struct {
	mu         sync.RWMutex
	offerings  []catalog.Entry
	rubrics    []navigator.Rubric
	choices    []navigator.Choice
	choiceByID map[string]navigator.Choice
	wallets    map[string][]offering.WalletEntry
	lastLoaded time.Time
	path       string
}

// LoadFile reads, normalizes and validates a snapshot document.
func LoadFile(path string) (*FileSource, error) {
	fs := &FileSource{path: path}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Reload re-reads the snapshot file. On error the previous snapshot stays in
// place.
func (fs *FileSource) Reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var raw rawSnapshot
	switch ext := strings.ToLower(filepath.Ext(fs.path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse YAML snapshot: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse JSON snapshot: %w", err)
		}
	default:
		return fmt.Errorf("unsupported snapshot format %q (want .json or .yaml)", ext)
	}

	offerings, rubrics, choices, wallets, err := cookSnapshot(raw)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	fs.offerings = offerings
	fs.rubrics = rubrics
	fs.choices = choices
	fs.choiceByID = make(map[string]navigator.Choice, len(choices))
	for _, c := range choices {
		fs.choiceByID[c.ID] = c
	}
	fs.wallets = wallets
	fs.lastLoaded = time.Now()
	fs.mu.Unlock()

	logger.LogInfo("Loaded snapshot %s: %d offerings, %d rubrics, %d choices, %d wallets",
		fs.path, len(offerings), len(rubrics), len(choices), len(wallets))
	return nil
}

// cookSnapshot normalizes and validates every raw record.
func cookSnapshot(raw rawSnapshot) ([]catalog.Entry, []navigator.Rubric, []navigator.Choice, map[string][]offering.WalletEntry, error) {
	offerings := make([]catalog.Entry, 0, len(raw.Offerings))
	for i, re := range raw.Offerings {
		id, err := NormalizeID(re.ID)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("offering %d: %w", i, err)
		}
		entry := catalog.Entry{ID: id, Name: re.Name, Icon: re.Icon, Price: re.Price, AltPrice: re.AltPrice}
		if err := ValidateEntry(entry); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("offering %d: %w", i, err)
		}
		offerings = append(offerings, entry)
	}

	rubrics := make([]navigator.Rubric, 0, len(raw.Rubrics))
	for i, rr := range raw.Rubrics {
		id, err := NormalizeID(rr.ID)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("rubric %d: %w", i, err)
		}
		rubrics = append(rubrics, navigator.Rubric{ID: id, Title: rr.Title, Description: rr.Description})
	}

	choices := make([]navigator.Choice, 0, len(raw.Choices))
	for i, rc := range raw.Choices {
		choice, err := cookChoice(rc)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("choice %d: %w", i, err)
		}
		choices = append(choices, choice)
	}

	wallets := make(map[string][]offering.WalletEntry, len(raw.Wallets))
	for userID, rawEntries := range raw.Wallets {
		entries := make([]offering.WalletEntry, 0, len(rawEntries))
		for i, rw := range rawEntries {
			id, err := NormalizeID(rw.Offering)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("wallet %s entry %d: %w", userID, i, err)
			}
			entry := offering.WalletEntry{OfferingID: id, Quantity: rw.Quantity}
			if err := ValidateWalletEntry(entry); err != nil {
				return nil, nil, nil, nil, fmt.Errorf("wallet %s entry %d: %w", userID, i, err)
			}
			entries = append(entries, entry)
		}
		wallets[userID] = entries
	}

	return offerings, rubrics, choices, wallets, nil
}

func cookChoice(rc rawChoice) (navigator.Choice, error) {
	id, err := NormalizeID(rc.ID)
	if err != nil {
		return navigator.Choice{}, fmt.Errorf("id: %w", err)
	}
	rubricID, err := NormalizeID(rc.RubricID)
	if err != nil {
		return navigator.Choice{}, fmt.Errorf("rubric id: %w", err)
	}

	alts := make([]offering.Alternative, 0, len(rc.Alternatives))
	for i, ra := range rc.Alternatives {
		offeringID, err := NormalizeID(ra.Offering)
		if err != nil {
			return navigator.Choice{}, fmt.Errorf("alternative %d: %w", i, err)
		}
		alts = append(alts, offering.Alternative{
			Category:   offering.Category(ra.Category),
			OfferingID: offeringID,
			Quantity:   ra.Quantity,
			Name:       ra.Name,
			Icon:       ra.Icon,
		})
	}

	legacy := make([]string, 0, len(rc.Offerings))
	for i, rawID := range rc.Offerings {
		legacyID, err := NormalizeID(rawID)
		if err != nil {
			return navigator.Choice{}, fmt.Errorf("legacy offering %d: %w", i, err)
		}
		legacy = append(legacy, legacyID)
	}

	choice := navigator.Choice{
		ID:          id,
		RubricID:    rubricID,
		Title:       rc.Title,
		Description: rc.Description,
	}
	if len(alts) > 0 {
		choice.Alternatives = alts
	}
	if len(legacy) > 0 {
		choice.LegacyOfferings = legacy
	}

	if err := ValidateChoice(choice); err != nil {
		return navigator.Choice{}, err
	}
	return choice, nil
}

// LastLoaded reports when the snapshot was last read successfully.
func (fs *FileSource) LastLoaded() time.Time {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.lastLoaded
}

// FetchOfferings implements CatalogSource.
func (fs *FileSource) FetchOfferings(_ context.Context) ([]catalog.Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]catalog.Entry, len(fs.offerings))
	copy(out, fs.offerings)
	return out, nil
}

// FetchWallet implements WalletSource. Unknown users own nothing.
func (fs *FileSource) FetchWallet(_ context.Context, userID string) ([]offering.WalletEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	entries := fs.wallets[userID]
	out := make([]offering.WalletEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// FetchRequiredAlternatives implements RequirementSource by resolving the
// consultation choice's requirement set, legacy lists included.
func (fs *FileSource) FetchRequiredAlternatives(_ context.Context, consultationID string) ([]offering.Alternative, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	choice, ok := fs.choiceByID[consultationID]
	if !ok {
		return nil, fmt.Errorf("unknown consultation %q", consultationID)
	}
	return navigator.RequirementSet(choice), nil
}

// Wallets returns every wallet in the snapshot, keyed by user. Used when
// seeding a database from a snapshot file.
func (fs *FileSource) Wallets() map[string][]offering.WalletEntry {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string][]offering.WalletEntry, len(fs.wallets))
	for userID, entries := range fs.wallets {
		cp := make([]offering.WalletEntry, len(entries))
		copy(cp, entries)
		out[userID] = cp
	}
	return out
}

// FetchRubrics implements RubricSource.
func (fs *FileSource) FetchRubrics(_ context.Context) ([]navigator.Rubric, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]navigator.Rubric, len(fs.rubrics))
	copy(out, fs.rubrics)
	return out, nil
}

// FetchConsultationChoices implements RubricSource.
func (fs *FileSource) FetchConsultationChoices(_ context.Context) ([]navigator.Choice, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]navigator.Choice, len(fs.choices))
	copy(out, fs.choices)
	return out, nil
}
