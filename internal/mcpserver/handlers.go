package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tonpost/tonpost/internal/nano"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *TonpostClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *TonpostClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetDeal looks up a deal.
func (h *Handlers) HandleGetDeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}

	raw, err := h.client.GetDeal(ctx, dealID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get deal: %v", err)), nil
	}

	text, err := formatDeal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse deal: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCreateDeal opens a new deal.
func (h *Handlers) HandleCreateDeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID := req.GetString("channel_owner_id", "")
	if ownerID == "" {
		return mcp.NewToolResultError("channel_owner_id is required"), nil
	}
	advertiserID := req.GetString("advertiser_id", "")
	if advertiserID == "" {
		return mcp.NewToolResultError("advertiser_id is required"), nil
	}
	priceStr := req.GetString("price_ton", "")
	if priceStr == "" {
		return mcp.NewToolResultError("price_ton is required"), nil
	}

	nanoton, err := parseTON(priceStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid price_ton: %v", err)), nil
	}

	raw, err := h.client.CreateDeal(ctx, ownerID, advertiserID, nanoton)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create deal: %v", err)), nil
	}

	text, err := formatDeal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse deal: %v", err)), nil
	}
	return mcp.NewToolResultText("Deal created.\n\n" + text), nil
}

// HandleAdvanceDeal moves a deal forward.
func (h *Handlers) HandleAdvanceDeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}
	target := req.GetString("target", "")
	if target == "" {
		return mcp.NewToolResultError("target is required"), nil
	}

	raw, err := h.client.TransitionDeal(ctx, dealID, target)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Transition failed: %v", err)), nil
	}

	text, err := formatDeal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse deal: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCancelDeal cancels a deal.
func (h *Handlers) HandleCancelDeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}
	reason := req.GetString("reason", "")

	raw, err := h.client.CancelDeal(ctx, dealID, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Cancel failed: %v", err)), nil
	}

	text, err := formatDeal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse deal: %v", err)), nil
	}
	return mcp.NewToolResultText("Deal cancelled. Any escrowed funds are being refunded.\n\n" + text), nil
}

// HandleSubmitCreative submits ad content.
func (h *Handlers) HandleSubmitCreative(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	raw, err := h.client.SubmitCreative(ctx, dealID, content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Submit failed: %v", err)), nil
	}

	text, err := formatCreative(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse creative: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleApproveCreative approves a creative version.
func (h *Handlers) HandleApproveCreative(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}
	creativeID := req.GetString("creative_id", "")
	if creativeID == "" {
		return mcp.NewToolResultError("creative_id is required"), nil
	}

	raw, err := h.client.ApproveCreative(ctx, dealID, creativeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Approve failed: %v", err)), nil
	}

	text, err := formatCreative(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse creative: %v", err)), nil
	}
	return mcp.NewToolResultText("Creative approved. Schedule the post with schedule_post.\n\n" + text), nil
}

// HandleSchedulePost sets the publication time.
func (h *Handlers) HandleSchedulePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}
	postAt := req.GetString("post_at", "")
	if postAt == "" {
		return mcp.NewToolResultError("post_at is required"), nil
	}

	raw, err := h.client.SchedulePost(ctx, dealID, postAt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Schedule failed: %v", err)), nil
	}

	text, err := formatDeal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse deal: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleInitiatePayment creates the escrow and returns deposit instructions.
func (h *Handlers) HandleInitiatePayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}

	raw, err := h.client.InitiatePayment(ctx, dealID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to initiate payment: %v", err)), nil
	}

	text, err := formatPayment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse payment: %v", err)), nil
	}
	return mcp.NewToolResultText("Escrow created. Send the deposit link to the advertiser.\n\n" + text), nil
}

// HandleCheckPayment polls the deposit status.
func (h *Handlers) HandleCheckPayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dealID := req.GetString("deal_id", "")
	if dealID == "" {
		return mcp.NewToolResultError("deal_id is required"), nil
	}

	raw, err := h.client.PaymentStatus(ctx, dealID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check payment: %v", err)), nil
	}

	text, err := formatPayment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse payment: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleSweepPayments runs the stuck-payment reconciliation.
func (h *Handlers) HandleSweepPayments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.SweepPayments(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Sweep failed: %v", err)), nil
	}

	text, err := formatSweep(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse sweep results: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatDeal(raw json.RawMessage) (string, error) {
	var resp struct {
		Deal map[string]any `json:"deal"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Deal == nil {
		return "", fmt.Errorf("no deal in response: %s", string(raw))
	}
	d := resp.Deal

	var sb strings.Builder
	fmt.Fprintf(&sb, "Deal %s\n", getString(d, "id"))
	fmt.Fprintf(&sb, "  Status: %s\n", getString(d, "status"))
	fmt.Fprintf(&sb, "  Channel owner: %s\n", getString(d, "channel_owner_id"))
	fmt.Fprintf(&sb, "  Advertiser: %s\n", getString(d, "advertiser_id"))
	if price, ok := getFloat(d, "agreed_price"); ok {
		fmt.Fprintf(&sb, "  Price: %s TON\n", nano.Format(int64(price)))
	}
	if v := getString(d, "scheduled_post_time"); v != "" {
		fmt.Fprintf(&sb, "  Scheduled: %s\n", v)
	}
	return sb.String(), nil
}

func formatCreative(raw json.RawMessage) (string, error) {
	var resp struct {
		Creative map[string]any `json:"creative"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Creative == nil {
		return "", fmt.Errorf("no creative in response: %s", string(raw))
	}
	c := resp.Creative

	var sb strings.Builder
	fmt.Fprintf(&sb, "Creative %s\n", getString(c, "id"))
	if v, ok := getFloat(c, "version"); ok {
		fmt.Fprintf(&sb, "  Version: %d\n", int(v))
	}
	fmt.Fprintf(&sb, "  Status: %s\n", getString(c, "status"))
	if v := getString(c, "content"); v != "" {
		fmt.Fprintf(&sb, "  Content: %s\n", v)
	}
	if v := getString(c, "feedback"); v != "" {
		fmt.Fprintf(&sb, "  Feedback: %s\n", v)
	}
	return sb.String(), nil
}

func formatPayment(raw json.RawMessage) (string, error) {
	var resp struct {
		Payment map[string]any `json:"payment"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Payment == nil {
		return "", fmt.Errorf("no payment in response: %s", string(raw))
	}
	p := resp.Payment

	var sb strings.Builder
	fmt.Fprintf(&sb, "Payment for deal %s\n", getString(p, "deal_id"))
	fmt.Fprintf(&sb, "  Status: %s\n", getString(p, "status"))
	if amount, ok := getFloat(p, "amount"); ok {
		fmt.Fprintf(&sb, "  Amount: %s TON\n", nano.Format(int64(amount)))
	}
	if v := getString(p, "escrow_address"); v != "" {
		fmt.Fprintf(&sb, "  Escrow address: %s\n", v)
	}
	if v := getString(p, "deposit_link"); v != "" {
		fmt.Fprintf(&sb, "  Deposit link: %s\n", v)
	}
	if paid, ok := p["paid"].(bool); ok {
		if paid {
			sb.WriteString("  Deposit: received\n")
		} else {
			sb.WriteString("  Deposit: not yet received\n")
		}
	}
	return sb.String(), nil
}

func formatSweep(raw json.RawMessage) (string, error) {
	var resp struct {
		Results []map[string]any `json:"results"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if resp.Count == 0 {
		return "Sweep complete: no stuck payments found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sweep complete: %d payment(s) examined.\n\n", resp.Count)
	for _, r := range resp.Results {
		fmt.Fprintf(&sb, "  %s: %s", getString(r, "deal_id"), getString(r, "result"))
		if e := getString(r, "error"); e != "" {
			fmt.Fprintf(&sb, " (%s)", e)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// parseTON converts a decimal TON amount like "2.5" to nanoton.
func parseTON(s string) (int64, error) {
	n, ok := nano.Parse(strings.TrimSpace(s))
	if !ok {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("amount must be positive: %q", s)
	}
	return n, nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
