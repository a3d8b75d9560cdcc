// internal/settlement/client.go

// Package settlement talks to the external settlement provider: the service
// that consumes a chosen offering and unlocks the consultation result.
package settlement

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"oraclebackend/internal/logger"
	"oraclebackend/internal/offering"
	"oraclebackend/internal/redemption"
)

// Client is an HTTP client for the settlement provider. It implements
// redemption.Settler.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a settlement client against the configured provider.
func NewClient(apiBase, apiKey string) *Client {
	return &Client{
		apiBase: apiBase,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
}

// settleRequest is the provider's wire format for a settlement attempt.
// RequestID doubles as the idempotency key: the provider must apply one
// user submission at most once even if the request is retried.
type settleRequest struct {
	RequestID      string `json:"request_id"`
	ConsultationID string `json:"consultation_id"`
	OfferingID     string `json:"offering_id"`
	Category       string `json:"category"`
	Quantity       int    `json:"quantity"`
}

type settleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Settle submits one settlement attempt. A declined settlement is a normal
// result, not an error; errors mean the provider could not be reached or
// answered garbage.
func (c *Client) Settle(ctx context.Context, consultationID string, alt offering.Alternative) (redemption.SettlementResult, error) {
	reqBody := settleRequest{
		RequestID:      uuid.NewString(),
		ConsultationID: consultationID,
		OfferingID:     alt.OfferingID,
		Category:       string(alt.Category),
		Quantity:       alt.Quantity,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return redemption.SettlementResult{}, fmt.Errorf("marshaling settlement request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/settlements", c.apiBase)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return redemption.SettlementResult{}, fmt.Errorf("creating settlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", reqBody.RequestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.LogInfo("Submitting settlement %s (consultation %s, %dx %s)",
		reqBody.RequestID, consultationID, alt.Quantity, alt.OfferingID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return redemption.SettlementResult{}, fmt.Errorf("executing settlement request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return redemption.SettlementResult{}, fmt.Errorf("reading settlement response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var result settleResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return redemption.SettlementResult{}, fmt.Errorf("parsing settlement response: %w", err)
		}
		return redemption.SettlementResult{OK: result.OK, Message: result.Message}, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		// Provider-side validation failure (e.g. insufficient holdings on
		// re-validation). Declined, with the provider's message when present.
		var result settleResponse
		if err := json.Unmarshal(body, &result); err == nil && result.Message != "" {
			return redemption.SettlementResult{OK: false, Message: result.Message}, nil
		}
		return redemption.SettlementResult{OK: false, Message: "The offering was declined."}, nil

	default:
		logger.LogError("Settlement provider error (HTTP %d): %s", resp.StatusCode, string(body))
		return redemption.SettlementResult{}, fmt.Errorf("settlement provider returned status %d", resp.StatusCode)
	}
}
