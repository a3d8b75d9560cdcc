// internal/source/source_test.go
package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraclebackend/internal/navigator"
	"oraclebackend/internal/offering"
)

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		name    string
		in      interface{}
		want    string
		wantErr bool
	}{
		{"plain string", "kola", "kola", false},
		{"padded string", "  kola \n", "kola", false},
		{"empty string", "", "", true},
		{"blank string", "   ", "", true},
		{"float id", float64(42), "42", false},
		{"int id", 7, "7", false},
		{"json number", json.Number("1234"), "1234", false},
		{"object with id", map[string]interface{}{"id": "kola"}, "kola", false},
		{"object with _id", map[string]interface{}{"_id": float64(9)}, "9", false},
		{"object with offering_id", map[string]interface{}{"offering_id": "palmwine"}, "palmwine", false},
		{"object without id key", map[string]interface{}{"name": "kola"}, "", true},
		{"nil", nil, "", true},
		{"bool", true, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeID(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateAlternative(t *testing.T) {
	good := offering.Alternative{Category: offering.CategoryAnimal, OfferingID: "chicken", Quantity: 2}
	require.NoError(t, ValidateAlternative(good))

	cases := []struct {
		name string
		alt  offering.Alternative
	}{
		{"bad category", offering.Alternative{Category: "mineral", OfferingID: "salt", Quantity: 1}},
		{"empty category", offering.Alternative{OfferingID: "salt", Quantity: 1}},
		{"missing id", offering.Alternative{Category: offering.CategoryVegetal, Quantity: 1}},
		{"zero quantity", offering.Alternative{Category: offering.CategoryVegetal, OfferingID: "kola", Quantity: 0}},
		{"negative quantity", offering.Alternative{Category: offering.CategoryVegetal, OfferingID: "kola", Quantity: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, ValidateAlternative(tc.alt))
		})
	}
}

func TestValidateChoice(t *testing.T) {
	require.NoError(t, ValidateChoice(navigator.Choice{ID: "c1", RubricID: "love"}))
	require.NoError(t, ValidateChoice(navigator.Choice{
		ID: "c1", RubricID: "love", LegacyOfferings: []string{"kola"},
	}))

	assert.Error(t, ValidateChoice(navigator.Choice{RubricID: "love"}))
	assert.Error(t, ValidateChoice(navigator.Choice{ID: "c1"}))
	assert.Error(t, ValidateChoice(navigator.Choice{
		ID: "c1", RubricID: "love",
		Alternatives: []offering.Alternative{{Category: "mineral", OfferingID: "salt", Quantity: 1}},
	}))
	assert.Error(t, ValidateChoice(navigator.Choice{
		ID: "c1", RubricID: "love", LegacyOfferings: []string{""},
	}))
}

const jsonSnapshot = `{
  "offerings": [
    {"id": "chicken", "name": "Chicken", "icon": "🐔", "price": 1500},
    {"id": 42, "name": "White Dove", "icon": "🕊️", "price": 2200},
    {"id": {"_id": "kola"}, "name": "Kola Nut", "icon": "🌰", "price": 200}
  ],
  "rubrics": [
    {"id": "love", "title": "Love & Family"},
    {"id": "fortune", "title": "Fortune & Trade"}
  ],
  "choices": [
    {
      "id": "c1", "rubric_id": "love", "title": "Reconciliation Reading",
      "alternatives": [
        {"category": "animal", "offering": "chicken", "quantity": 2},
        {"category": "vegetal", "offering": {"id": "kola"}, "quantity": 4}
      ]
    },
    {"id": "c2", "rubric_id": "fortune", "title": "Union Blessing", "offerings": ["kola", "palmwine"]}
  ],
  "wallets": {
    "user-1": [{"offering": "chicken", "quantity": 3}, {"offering": 42, "quantity": 1}]
  }
}`

const yamlSnapshot = `offerings:
  - id: chicken
    name: Chicken
    icon: "🐔"
    price: 1500
rubrics:
  - id: love
    title: Love & Family
choices:
  - id: c1
    rubric_id: love
    title: Reconciliation Reading
    alternatives:
      - category: animal
        offering: chicken
        quantity: 2
wallets:
  user-1:
    - offering: chicken
      quantity: 3
`

func writeSnapshot(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJSONSnapshot(t *testing.T) {
	fs, err := LoadFile(writeSnapshot(t, "snapshot.json", jsonSnapshot))
	require.NoError(t, err)

	ctx := context.Background()

	offerings, err := fs.FetchOfferings(ctx)
	require.NoError(t, err)
	require.Len(t, offerings, 3)
	// Numeric and object ids come out as canonical strings.
	assert.Equal(t, "42", offerings[1].ID)
	assert.Equal(t, "kola", offerings[2].ID)

	alts, err := fs.FetchRequiredAlternatives(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, alts, 2)
	assert.Equal(t, "kola", alts[1].OfferingID)
	assert.Equal(t, offering.CategoryVegetal, alts[1].Category)

	// Legacy choice synthesizes through the documented default.
	legacy, err := fs.FetchRequiredAlternatives(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, legacy, 2)
	assert.Equal(t, offering.CategoryAnimal, legacy[0].Category)
	assert.Equal(t, 1, legacy[0].Quantity)

	wallet, err := fs.FetchWallet(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, wallet, 2)
	assert.Equal(t, "42", wallet[1].OfferingID)

	// Unknown users own nothing; not an error.
	empty, err := fs.FetchWallet(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = fs.FetchRequiredAlternatives(ctx, "ghost")
	assert.Error(t, err)
}

func TestLoadYAMLSnapshot(t *testing.T) {
	fs, err := LoadFile(writeSnapshot(t, "snapshot.yaml", yamlSnapshot))
	require.NoError(t, err)

	rubrics, err := fs.FetchRubrics(context.Background())
	require.NoError(t, err)
	require.Len(t, rubrics, 1)
	assert.Equal(t, "love", rubrics[0].ID)

	choices, err := fs.FetchConsultationChoices(context.Background())
	require.NoError(t, err)
	require.Len(t, choices, 1)
	assert.Equal(t, "c1", choices[0].ID)
}

func TestLoadRejectsMalformedData(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad category", `{"choices": [{"id": "c1", "rubric_id": "r", "alternatives": [{"category": "mineral", "offering": "salt", "quantity": 1}]}]}`},
		{"zero quantity", `{"choices": [{"id": "c1", "rubric_id": "r", "alternatives": [{"category": "animal", "offering": "goat", "quantity": 0}]}]}`},
		{"offering without id", `{"offerings": [{"name": "Nameless", "price": 10}]}`},
		{"negative wallet", `{"wallets": {"u": [{"offering": "kola", "quantity": -1}]}}`},
		{"choice without rubric", `{"choices": [{"id": "c1", "title": "Orphan"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFile(writeSnapshot(t, "bad.json", tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := LoadFile(writeSnapshot(t, "snapshot.txt", "{}"))
	assert.Error(t, err)
}

func TestReloadKeepsOldSnapshotOnError(t *testing.T) {
	path := writeSnapshot(t, "snapshot.json", jsonSnapshot)
	fs, err := LoadFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	require.Error(t, fs.Reload())

	offerings, err := fs.FetchOfferings(context.Background())
	require.NoError(t, err)
	assert.Len(t, offerings, 3, "previous snapshot must survive a failed reload")
}
