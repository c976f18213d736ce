package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

// WebhookAdapter talks to an HTTP SMS gateway. The wire contract is the
// common webhook shape: POST the number and body, get 202 with a messageId
// back. Anything else is a SendError carrying the HTTP status as its code.
type WebhookAdapter struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func NewWebhookAdapter(name, url, apiKey string) *WebhookAdapter {
	return &WebhookAdapter{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (a *WebhookAdapter) Name() string { return a.name }

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (a *WebhookAdapter) Send(ctx context.Context, destination, body string) (string, error) {
	reqBody, err := json.Marshal(sendRequest{
		PhoneNumber: destination,
		Message:     body,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &SendError{Code: "TIMEOUT", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", &SendError{
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: fmt.Sprintf("unexpected status code: %d body=%q", resp.StatusCode, string(respBody)),
		}
	}

	var sr sendResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", &SendError{Code: "BAD_RESPONSE", Message: fmt.Sprintf("failed to decode json: %v body=%q", err, string(respBody))}
	}
	if sr.MessageID == "" {
		return "", &SendError{Code: "BAD_RESPONSE", Message: fmt.Sprintf("missing messageId in response body=%q", string(respBody))}
	}

	return sr.MessageID, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (a *WebhookAdapter) DeliveryStatus(ctx context.Context, providerMessageID string) (model.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/"+providerMessageID+"/status", nil)
	if err != nil {
		return "", err
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(respBody))
	}

	var sr statusResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(respBody))
	}

	switch sr.Status {
	case "delivered":
		return model.StatusDelivered, nil
	case "failed", "undelivered", "rejected":
		return model.StatusFailed, nil
	default:
		return model.StatusSent, nil
	}
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

func (a *WebhookAdapter) Balance(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/balance", nil)
	if err != nil {
		return 0, err
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(respBody))
	}

	var br balanceResponse
	if err := json.Unmarshal(respBody, &br); err != nil {
		return 0, fmt.Errorf("failed to decode json: %w body=%q", err, string(respBody))
	}
	return br.Balance, nil
}
