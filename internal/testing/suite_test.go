// suite_test.go - shared harness for the end-to-end tests
package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/data"
	"oraclebackend/internal/navigator"
	"oraclebackend/internal/offering"
	"oraclebackend/internal/redemption"
	"oraclebackend/internal/settlement"
)

// apiEnvelope mirrors the middleware response wrapper.
type apiEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

type flowPayload struct {
	View     redemption.View `json:"view"`
	Navigate string          `json:"navigate,omitempty"`
}

type browsePayload struct {
	SessionID string         `json:"session_id"`
	View      navigator.View `json:"view"`
}

// TestSuite wires the real handler stack against a temp database and a mock
// settlement provider.
type TestSuite struct {
	t        *testing.T
	Server   *httptest.Server
	Client   *http.Client
	Mock     *MockSettlementService
	Registry *redemption.Registry
}

// NewTestSuite builds a fully wired server over a fresh seeded database.
// Handler wiring is package-global, so suites must not run in parallel.
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "oracle_test.db")
	require.NoError(t, data.InitDB(dbPath))
	require.NoError(t, data.EnsureSchema())
	t.Cleanup(func() { data.CloseDB() })

	seedStore(t)

	mock := NewMockSettlementService()
	t.Cleanup(mock.Close)

	registry := redemption.NewRegistry()
	settler := settlement.NewClient(mock.GetAPIBase(), "test-key")

	ctx := context.Background()
	entries, err := data.GetOfferings(ctx)
	require.NoError(t, err)
	ix := catalog.BuildIndex(entries)
	catalogFn := func() *catalog.Index { return ix }

	redemption.Configure(registry, data.SQLSource{}, data.SQLSource{}, settler, data.SQLLedger{}, catalogFn)
	navigator.Configure(data.SQLSource{}, catalogFn)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start", redemption.StartFlowHandler)
	mux.HandleFunc("/api/flow/view", redemption.FlowViewHandler)
	mux.HandleFunc("/api/flow/select-category", redemption.SelectCategoryHandler)
	mux.HandleFunc("/api/flow/select-offering", redemption.SelectOfferingHandler)
	mux.HandleFunc("/api/flow/submit", redemption.SubmitHandler)
	mux.HandleFunc("/api/flow/dismiss-notice", redemption.DismissNoticeHandler)
	mux.HandleFunc("/api/flow/refresh-wallet", redemption.RefreshWalletHandler)
	mux.HandleFunc("/api/flow/market", redemption.MarketHandler)
	mux.HandleFunc("/api/flow/back", redemption.BackHandler)
	mux.HandleFunc("/api/flow/exit-home", redemption.ExitHomeHandler)
	mux.HandleFunc("/api/flow/abandon", redemption.AbandonHandler)
	mux.HandleFunc("/api/browse/start", navigator.StartBrowseHandler)
	mux.HandleFunc("/api/browse/open-rubric", navigator.OpenRubricHandler)
	mux.HandleFunc("/api/browse/open-choice", navigator.OpenChoiceHandler)
	mux.HandleFunc("/api/browse/back", navigator.BackHandler)
	mux.HandleFunc("/api/browse/view", navigator.ViewHandler)
	mux.HandleFunc("/api/browse/end", navigator.EndBrowseHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &TestSuite{
		t:        t,
		Server:   server,
		Client:   server.Client(),
		Mock:     mock,
		Registry: registry,
	}
}

// seedStore loads the fixture catalog, rubrics, choices and one wallet.
func seedStore(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, data.ReplaceOfferings(ctx, []catalog.Entry{
		{ID: "chicken", Name: "White Chicken", Icon: "🐔", Price: 12.50},
		{ID: "kola", Name: "Kola Nut", Icon: "🌰", Price: 1.25},
		{ID: "palmwine", Name: "Palm Wine", Icon: "🍶", Price: 6.00},
	}))

	require.NoError(t, data.ReplaceRubrics(ctx, []navigator.Rubric{
		{ID: "love", Title: "Love & Destiny"},
		{ID: "fortune", Title: "Fortune"},
		{ID: "health", Title: "Health"},
	}))

	require.NoError(t, data.ReplaceChoices(ctx, []navigator.Choice{
		{
			ID:       "love-reading",
			RubricID: "love",
			Title:    "Full Love Reading",
			Alternatives: []offering.Alternative{
				{Category: offering.CategoryAnimal, OfferingID: "chicken", Quantity: 2},
				{Category: offering.CategoryVegetal, OfferingID: "kola", Quantity: 4},
				{Category: offering.CategoryBeverage, OfferingID: "palmwine", Quantity: 2},
			},
		},
		{
			ID:              "quick-blessing",
			RubricID:        "love",
			Title:           "Quick Blessing",
			LegacyOfferings: []string{"kola"},
		},
		{
			ID:       "fortune-cast",
			RubricID: "fortune",
			Title:    "Fortune Cast",
			Alternatives: []offering.Alternative{
				{Category: offering.CategoryAnimal, OfferingID: "chicken", Quantity: 1},
			},
		},
	}))

	require.NoError(t, data.SetWallet(ctx, "ada", []offering.WalletEntry{
		{OfferingID: "chicken", Quantity: 3},
		{OfferingID: "kola", Quantity: 1},
		{OfferingID: "palmwine", Quantity: 1},
	}))
}

// postJSON posts a JSON body and decodes the response envelope. The returned
// status lets callers assert error paths.
func (s *TestSuite) postJSON(path string, body interface{}) (int, apiEnvelope) {
	s.t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(s.t, err)

	resp, err := s.Client.Post(s.Server.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env apiEnvelope
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *TestSuite) getJSON(path string) (int, apiEnvelope) {
	s.t.Helper()

	resp, err := s.Client.Get(s.Server.URL + path)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env apiEnvelope
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeFlow(t *testing.T, env apiEnvelope) flowPayload {
	t.Helper()
	var p flowPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func decodeBrowse(t *testing.T, env apiEnvelope) browsePayload {
	t.Helper()
	var p browsePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

// startFlow opens a flow and returns its id.
func (s *TestSuite) startFlow(consultationID, userID string) flowPayload {
	s.t.Helper()

	status, env := s.postJSON("/api/flow/start", map[string]string{
		"consultation_id": consultationID,
		"user_id":         userID,
	})
	require.Equal(s.t, http.StatusOK, status)
	return decodeFlow(s.t, env)
}

// waitForState polls the flow view until it reaches the wanted state.
func (s *TestSuite) waitForState(flowID string, want redemption.State) flowPayload {
	s.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		status, env := s.getJSON("/api/flow/view?flow_id=" + flowID)
		require.Equal(s.t, http.StatusOK, status)
		p := decodeFlow(s.t, env)
		if p.View.State == want {
			return p
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.t.Fatalf("flow %s never reached state %q", flowID, want)
	return flowPayload{}
}
