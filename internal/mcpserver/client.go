package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for connecting to the tonpost platform.
type Config struct {
	APIURL         string // Base URL, e.g. "http://localhost:8080"
	InternalAPIKey string // Required for release/refund tools
	AdminSecret    string // Required for the sweep tool
}

// TonpostClient is a pure HTTP client for the tonpost platform API.
type TonpostClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewTonpostClient creates a new client for the tonpost platform.
func NewTonpostClient(cfg Config) *TonpostClient {
	return &TonpostClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *TonpostClient) doRequest(ctx context.Context, method, path string, body any, headers map[string]string) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

func (c *TonpostClient) internalHeaders() map[string]string {
	return map[string]string{"X-Internal-Key": c.cfg.InternalAPIKey}
}

func (c *TonpostClient) adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Secret": c.cfg.AdminSecret}
}

// GetDeal fetches a single deal with its current status.
func (c *TonpostClient) GetDeal(ctx context.Context, dealID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/deals/"+dealID, nil, nil)
}

// CreateDeal opens a new deal in NEGOTIATING.
func (c *TonpostClient) CreateDeal(ctx context.Context, ownerID, advertiserID string, priceNanoton int64) (json.RawMessage, error) {
	body := map[string]any{
		"channel_owner_id": ownerID,
		"advertiser_id":    advertiserID,
		"agreed_price":     priceNanoton,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/deals", body, nil)
}

// TransitionDeal moves a deal to the target status.
func (c *TonpostClient) TransitionDeal(ctx context.Context, dealID, target string) (json.RawMessage, error) {
	body := map[string]string{"target": target}
	return c.doRequest(ctx, http.MethodPost, "/v1/deals/"+dealID+"/transition", body, nil)
}

// CancelDeal cancels a deal with an optional reason.
func (c *TonpostClient) CancelDeal(ctx context.Context, dealID, reason string) (json.RawMessage, error) {
	body := map[string]string{"reason": reason}
	return c.doRequest(ctx, http.MethodPost, "/v1/deals/"+dealID+"/cancel", body, nil)
}

// SubmitCreative submits ad content for review.
func (c *TonpostClient) SubmitCreative(ctx context.Context, dealID, content string) (json.RawMessage, error) {
	body := map[string]string{"content": content}
	return c.doRequest(ctx, http.MethodPost, "/v1/deals/"+dealID+"/creatives", body, nil)
}

// ApproveCreative approves a submitted creative version.
func (c *TonpostClient) ApproveCreative(ctx context.Context, dealID, creativeID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/deals/"+dealID+"/creatives/"+creativeID+"/approve", nil, nil)
}

// SchedulePost sets the publication time for an approved deal.
func (c *TonpostClient) SchedulePost(ctx context.Context, dealID, postAt string) (json.RawMessage, error) {
	body := map[string]string{"post_at": postAt}
	return c.doRequest(ctx, http.MethodPost, "/v1/deals/"+dealID+"/schedule", body, nil)
}

// InitiatePayment creates the escrow and returns deposit instructions.
func (c *TonpostClient) InitiatePayment(ctx context.Context, dealID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/payments/"+dealID+"/initiate", nil, nil)
}

// PaymentStatus polls the deposit status for a deal.
func (c *TonpostClient) PaymentStatus(ctx context.Context, dealID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/payments/"+dealID+"/status", nil, nil)
}

// ReleasePayment pays out the escrow to the channel owner.
func (c *TonpostClient) ReleasePayment(ctx context.Context, dealID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/internal/payments/"+dealID+"/release", nil, c.internalHeaders())
}

// RefundPayment returns the escrow to the advertiser.
func (c *TonpostClient) RefundPayment(ctx context.Context, dealID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/internal/payments/"+dealID+"/refund", nil, c.internalHeaders())
}

// SweepPayments reconciles stuck PAID payments against on-chain state.
func (c *TonpostClient) SweepPayments(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/admin/sweep", nil, c.adminHeaders())
}
