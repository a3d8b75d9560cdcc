// internal/settlement/webhook.go
package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"oraclebackend/internal/config"
	"oraclebackend/internal/data"
	"oraclebackend/internal/logger"
)

// webhookEvent is the provider's asynchronous confirmation payload.
type webhookEvent struct {
	EventType      string `json:"event_type"`
	SettlementID   string `json:"settlement_id"`
	FlowID         string `json:"flow_id"`
	ConsultationID string `json:"consultation_id"`
	OfferingID     string `json:"offering_id"`
	Quantity       int    `json:"quantity"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

// WebhookHandler records provider confirmations into the settlement ledger.
// The redemption flow itself is driven by the synchronous settle call;
// webhook events exist for reconciliation and audit only.
func WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.LogInfo("Received settlement webhook")
	logger.LogHTTPRequest(r)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.LogHTTPError(r, http.StatusBadRequest, err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Settlement-Signature")
	if !verifyWebhookSignature(payload, signature) {
		logger.LogError("Invalid settlement webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.LogHTTPError(r, http.StatusBadRequest, err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	logger.LogInfo("Webhook event %s for flow %s (status %s)", event.EventType, event.FlowID, event.Status)

	if event.FlowID == "" {
		// Nothing to reconcile against; acknowledged and dropped.
		logger.LogInfo("Webhook event has no flow id, ignoring")
		w.WriteHeader(http.StatusOK)
		return
	}

	rec := data.SettlementRecord{
		FlowID:         event.FlowID,
		ConsultationID: event.ConsultationID,
		OfferingID:     event.OfferingID,
		Quantity:       event.Quantity,
		Status:         "webhook:" + event.Status,
		Message:        event.Message,
	}
	if err := data.AppendSettlement(r.Context(), rec); err != nil {
		logger.LogWarn("Failed to record webhook for flow %s: %v", event.FlowID, err)
	}

	w.WriteHeader(http.StatusOK)
}

// verifyWebhookSignature checks the provider's HMAC-SHA256 signature over
// the raw payload. Mock verification can be enabled for local development.
func verifyWebhookSignature(payload []byte, signature string) bool {
	if config.UseMockWebhookVerification() {
		logger.LogWarn("Webhook signature verification is mocked")
		return true
	}

	secret := config.WebhookSecret()
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
