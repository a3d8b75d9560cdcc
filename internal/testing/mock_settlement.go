// mock_settlement.go - Mock settlement provider with failure simulation
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockSettlementService provides a mock settlement provider API for testing.
type MockSettlementService struct {
	Server      *httptest.Server
	Settlements map[string]*MockSettlement
	mu          sync.RWMutex

	// Configuration for failure simulation
	ShouldDecline        bool
	DeclineMessage       string
	ShouldError          bool
	SimulateNetworkDelay time.Duration

	// Counters for tracking
	SettleAttempts int
}

type MockSettlement struct {
	RequestID      string
	ConsultationID string
	OfferingID     string
	Category       string
	Quantity       int
	Accepted       bool
	Received       time.Time
}

// NewMockSettlementService creates a new mock settlement provider.
func NewMockSettlementService() *MockSettlementService {
	mock := &MockSettlementService{
		Settlements: make(map[string]*MockSettlement),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/settlements", mock.handleSettle)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// Close shuts down the mock server
func (m *MockSettlementService) Close() {
	m.Server.Close()
}

// GetAPIBase returns the mock server's base URL
func (m *MockSettlementService) GetAPIBase() string {
	return m.Server.URL
}

func (m *MockSettlementService) handleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.mu.Lock()
	m.SettleAttempts++
	shouldDecline := m.ShouldDecline
	declineMsg := m.DeclineMessage
	shouldError := m.ShouldError
	delay := m.SimulateNetworkDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if shouldError {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "INTERNAL_SERVER_ERROR",
			"message": "Settlement failed",
		})
		return
	}

	var req struct {
		RequestID      string `json:"request_id"`
		ConsultationID string `json:"consultation_id"`
		OfferingID     string `json:"offering_id"`
		Category       string `json:"category"`
		Quantity       int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	// Idempotency: a replayed request id returns the recorded outcome.
	if prior, exists := m.Settlements[req.RequestID]; exists {
		m.mu.Unlock()
		m.respond(w, prior.Accepted, declineMsg)
		return
	}
	m.Settlements[req.RequestID] = &MockSettlement{
		RequestID:      req.RequestID,
		ConsultationID: req.ConsultationID,
		OfferingID:     req.OfferingID,
		Category:       req.Category,
		Quantity:       req.Quantity,
		Accepted:       !shouldDecline,
		Received:       time.Now(),
	}
	m.mu.Unlock()

	m.respond(w, !shouldDecline, declineMsg)
}

func (m *MockSettlementService) respond(w http.ResponseWriter, accepted bool, declineMsg string) {
	w.Header().Set("Content-Type", "application/json")
	if accepted {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":      true,
			"message": "Offering accepted",
		})
		return
	}

	if declineMsg == "" {
		declineMsg = "The spirits rejected this offering"
	}
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":      false,
		"message": declineMsg,
	})
}

// Test Utilities

// SetDecline configures the mock to decline settlements with a message.
func (m *MockSettlementService) SetDecline(decline bool, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ShouldDecline = decline
	m.DeclineMessage = message
}

// SetError configures the mock to answer with HTTP 500.
func (m *MockSettlementService) SetError(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ShouldError = fail
}

// SetNetworkDelay simulates network latency
func (m *MockSettlementService) SetNetworkDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SimulateNetworkDelay = delay
}

// GetSettlementCount returns the number of settlements received
func (m *MockSettlementService) GetSettlementCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.Settlements)
}

// GetAcceptedCount returns the number of accepted settlements
func (m *MockSettlementService) GetAcceptedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.Settlements {
		if s.Accepted {
			count++
		}
	}
	return count
}

// GetStats returns statistics about mock usage
func (m *MockSettlementService) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accepted := 0
	for _, s := range m.Settlements {
		if s.Accepted {
			accepted++
		}
	}
	return map[string]int{
		"settle_attempts":      m.SettleAttempts,
		"total_settlements":    len(m.Settlements),
		"accepted_settlements": accepted,
		"declined_settlements": len(m.Settlements) - accepted,
	}
}

// Reset clears all mock data
func (m *MockSettlementService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Settlements = make(map[string]*MockSettlement)
	m.ShouldDecline = false
	m.DeclineMessage = ""
	m.ShouldError = false
	m.SimulateNetworkDelay = 0
	m.SettleAttempts = 0
}
