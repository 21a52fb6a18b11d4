package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:         ts.URL,
		InternalAPIKey: "internal-key",
		AdminSecret:    "admin-secret",
	}
	client := NewTonpostClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid_transition",
			"message": "cannot move from NEGOTIATING to COMPLETED",
		})
	}))
	defer ts.Close()

	client := NewTonpostClient(Config{APIURL: ts.URL})
	_, err := client.TransitionDeal(context.Background(), "d1", "COMPLETED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "cannot move from NEGOTIATING to COMPLETED")
}

func TestClient_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewTonpostClient(Config{APIURL: ts.URL})
	_, err := client.GetDeal(context.Background(), "d1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewTonpostClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetDeal(context.Background(), "d1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_ReleaseSendsInternalKey(t *testing.T) {
	var gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Internal-Key")
		assert.Equal(t, "/v1/internal/payments/d1/release", r.URL.Path)
		_, _ = w.Write([]byte(`{"payment":{"deal_id":"d1","status":"RELEASED"}}`))
	}))
	defer ts.Close()

	client := NewTonpostClient(Config{APIURL: ts.URL, InternalAPIKey: "sekrit"})
	_, err := client.ReleasePayment(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "sekrit", gotKey)
}

func TestClient_SweepSendsAdminSecret(t *testing.T) {
	var gotSecret string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Admin-Secret")
		assert.Equal(t, "/v1/admin/sweep", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewTonpostClient(Config{APIURL: ts.URL, AdminSecret: "topsecret"})
	_, err := client.SweepPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "topsecret", gotSecret)
}

func TestClient_CreateDeal_RequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "owner_1", m["channel_owner_id"])
		assert.Equal(t, "adv_1", m["advertiser_id"])
		assert.Equal(t, float64(5_000_000_000), m["agreed_price"])

		_, _ = w.Write([]byte(`{"deal":{"id":"d1","status":"NEGOTIATING"}}`))
	}))
	defer ts.Close()

	client := NewTonpostClient(Config{APIURL: ts.URL})
	_, err := client.CreateDeal(context.Background(), "owner_1", "adv_1", 5_000_000_000)
	require.NoError(t, err)
}

// ============================================================
// Handler: get_deal
// ============================================================

func TestHandleGetDeal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/deal_1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deal": map[string]any{
				"id":                  "deal_1",
				"status":              "SCHEDULED",
				"channel_owner_id":    "owner_1",
				"advertiser_id":       "adv_1",
				"agreed_price":        2_500_000_000,
				"scheduled_post_time": "2026-09-01T12:00:00Z",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetDeal(context.Background(), makeRequest(map[string]any{
		"deal_id": "deal_1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "deal_1")
	assert.Contains(t, text, "SCHEDULED")
	assert.Contains(t, text, "2.5 TON")
	assert.Contains(t, text, "2026-09-01T12:00:00Z")
}

func TestHandleGetDeal_MissingID(t *testing.T) {
	h := NewHandlers(NewTonpostClient(Config{}))
	result, err := h.HandleGetDeal(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "deal_id is required")
}

func TestHandleGetDeal_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "not_found", "message": "Deal not found"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetDeal(context.Background(), makeRequest(map[string]any{
		"deal_id": "gone",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Deal not found")
}

// ============================================================
// Handler: create_deal
// ============================================================

func TestHandleCreateDeal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, float64(5_000_000_000), m["agreed_price"])

		w.WriteHeader(201)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deal": map[string]any{
				"id": "deal_new", "status": "NEGOTIATING",
				"channel_owner_id": "owner_1", "advertiser_id": "adv_1",
				"agreed_price": 5_000_000_000,
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCreateDeal(context.Background(), makeRequest(map[string]any{
		"channel_owner_id": "owner_1",
		"advertiser_id":    "adv_1",
		"price_ton":        "5",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Deal created")
	assert.Contains(t, text, "deal_new")
	assert.Contains(t, text, "NEGOTIATING")
	assert.Contains(t, text, "5 TON")
}

func TestHandleCreateDeal_FractionalPrice(t *testing.T) {
	var gotPrice float64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		gotPrice = m["agreed_price"].(float64)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deal": map[string]any{"id": "d1", "status": "NEGOTIATING"},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCreateDeal(context.Background(), makeRequest(map[string]any{
		"channel_owner_id": "o", "advertiser_id": "a", "price_ton": "0.25",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, float64(250_000_000), gotPrice)
}

func TestHandleCreateDeal_InvalidPrice(t *testing.T) {
	h := NewHandlers(NewTonpostClient(Config{}))
	for _, price := range []string{"abc", "-1", "0", "1.2.3"} {
		result, err := h.HandleCreateDeal(context.Background(), makeRequest(map[string]any{
			"channel_owner_id": "o", "advertiser_id": "a", "price_ton": price,
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError, "price %q should be rejected", price)
	}
}

func TestHandleCreateDeal_MissingFields(t *testing.T) {
	h := NewHandlers(NewTonpostClient(Config{}))

	result, _ := h.HandleCreateDeal(context.Background(), makeRequest(map[string]any{
		"advertiser_id": "a", "price_ton": "1",
	}))
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "channel_owner_id is required")

	result, _ = h.HandleCreateDeal(context.Background(), makeRequest(map[string]any{
		"channel_owner_id": "o", "advertiser_id": "a",
	}))
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "price_ton is required")
}

// ============================================================
// Handler: advance_deal / cancel_deal
// ============================================================

func TestHandleAdvanceDeal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/d1/transition", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "AWAITING_PAYMENT", body["target"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deal": map[string]any{"id": "d1", "status": "AWAITING_PAYMENT"},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleAdvanceDeal(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
		"target":  "AWAITING_PAYMENT",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "AWAITING_PAYMENT")
}

func TestHandleAdvanceDeal_IllegalTransition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/d1/transition", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(409)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "invalid_transition", "message": "cannot move from NEGOTIATING to POSTED",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleAdvanceDeal(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1", "target": "POSTED",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "cannot move from NEGOTIATING to POSTED")
}

func TestHandleCancelDeal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/d1/cancel", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "advertiser backed out", body["reason"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deal": map[string]any{"id": "d1", "status": "CANCELLED"},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCancelDeal(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
		"reason":  "advertiser backed out",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "cancelled")
	assert.Contains(t, text, "CANCELLED")
}

// ============================================================
// Handler: creatives and scheduling
// ============================================================

func TestHandleSubmitCreative(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/d1/creatives", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "Try TON today", body["content"])

		w.WriteHeader(201)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"creative": map[string]any{
				"id": "cr_1", "version": 1, "status": "PENDING", "content": "Try TON today",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleSubmitCreative(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
		"content": "Try TON today",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "cr_1")
	assert.Contains(t, text, "Version: 1")
	assert.Contains(t, text, "Try TON today")
}

func TestHandleApproveCreative(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/d1/creatives/cr_1/approve", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"creative": map[string]any{"id": "cr_1", "version": 1, "status": "APPROVED"},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleApproveCreative(context.Background(), makeRequest(map[string]any{
		"deal_id":     "d1",
		"creative_id": "cr_1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "approved")
	assert.Contains(t, text, "schedule_post")
}

func TestHandleSchedulePost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deals/d1/schedule", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "2026-09-01T12:00:00Z", body["post_at"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deal": map[string]any{
				"id": "d1", "status": "SCHEDULED",
				"scheduled_post_time": "2026-09-01T12:00:00Z",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleSchedulePost(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
		"post_at": "2026-09-01T12:00:00Z",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "SCHEDULED")
}

// ============================================================
// Handler: payments
// ============================================================

func TestHandleInitiatePayment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payments/d1/initiate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment": map[string]any{
				"deal_id":        "d1",
				"status":         "PENDING",
				"amount":         5_000_000_000,
				"escrow_address": "EQescrow1",
				"deposit_link":   "ton://transfer/EQescrow1?amount=5000000000&text=d1",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleInitiatePayment(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Escrow created")
	assert.Contains(t, text, "EQescrow1")
	assert.Contains(t, text, "ton://transfer/")
	assert.Contains(t, text, "5 TON")
}

func TestHandleInitiatePayment_WrongState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payments/d1/initiate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(409)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "invalid_state", "message": "deal is not awaiting payment",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleInitiatePayment(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not awaiting payment")
}

func TestHandleCheckPayment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payments/d1/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment": map[string]any{
				"deal_id": "d1", "status": "PAID", "paid": true,
				"amount": 5_000_000_000, "escrow_address": "EQescrow1",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCheckPayment(context.Background(), makeRequest(map[string]any{
		"deal_id": "d1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "PAID")
	assert.Contains(t, text, "Deposit: received")
}

// ============================================================
// Handler: sweep_stuck_payments
// ============================================================

func TestHandleSweepPayments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/admin/sweep", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "admin-secret", r.Header.Get("X-Admin-Secret"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"deal_id": "d1", "payment_id": "pay_1", "result": "released"},
				{"deal_id": "d2", "payment_id": "pay_2", "result": "failed", "error": "no payout address"},
			},
			"count": 2,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleSweepPayments(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "2 payment(s) examined")
	assert.Contains(t, text, "d1: released")
	assert.Contains(t, text, "d2: failed (no payout address)")
}

func TestHandleSweepPayments_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/admin/sweep", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{}, "count": 0})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleSweepPayments(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no stuck payments")
}

func TestHandleSweepPayments_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/admin/sweep", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "unauthorized", "message": "Invalid or missing X-Admin-Secret",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleSweepPayments(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "X-Admin-Secret")
}

// ============================================================
// Parsing & formatting unit tests
// ============================================================

func TestParseTON(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1", 1_000_000_000},
		{"5", 5_000_000_000},
		{"0.25", 250_000_000},
		{"2.5", 2_500_000_000},
		{"0.000000001", 1},
		{"10.000000001", 10_000_000_001},
		{" 2.5 ", 2_500_000_000},
		// digits past the 9th decimal are dropped
		{"1.1234567891", 1_123_456_789},
	}
	for _, tt := range tests {
		got, err := parseTON(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseTON_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "0", "0.0", "1.2.3"} {
		_, err := parseTON(in)
		assert.Error(t, err, "input %q should fail", in)
	}
}

func TestFormatDeal_MissingDeal(t *testing.T) {
	_, err := formatDeal(json.RawMessage(`{"status":"ok"}`))
	assert.Error(t, err)
}

func TestFormatDeal_MalformedJSON(t *testing.T) {
	_, err := formatDeal(json.RawMessage(`garbage`))
	assert.Error(t, err)
}

func TestFormatPayment_PendingDeposit(t *testing.T) {
	raw := json.RawMessage(`{"payment":{"deal_id":"d1","status":"PENDING","paid":false,"amount":1000000000}}`)
	text, err := formatPayment(raw)
	require.NoError(t, err)
	assert.Contains(t, text, "Deposit: not yet received")
	assert.Contains(t, text, "1 TON")
}

func TestFormatSweep_MalformedJSON(t *testing.T) {
	_, err := formatSweep(json.RawMessage(`garbage`))
	assert.Error(t, err)
}

// ============================================================
// Server wiring
// ============================================================

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}

// ============================================================
// Edge cases: handler never returns Go error
// ============================================================

func TestHandlers_NeverReturnGoError(t *testing.T) {
	// All handlers should return (result, nil) even on failures.
	// The failure is encoded in result.IsError, not in the Go error.
	h := NewHandlers(NewTonpostClient(Config{
		APIURL: "http://127.0.0.1:1", // unreachable
	}))

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"GetDeal", func() (*mcp.CallToolResult, error) {
			return h.HandleGetDeal(context.Background(), makeRequest(map[string]any{"deal_id": "d1"}))
		}},
		{"CreateDeal", func() (*mcp.CallToolResult, error) {
			return h.HandleCreateDeal(context.Background(), makeRequest(map[string]any{
				"channel_owner_id": "o", "advertiser_id": "a", "price_ton": "1",
			}))
		}},
		{"AdvanceDeal", func() (*mcp.CallToolResult, error) {
			return h.HandleAdvanceDeal(context.Background(), makeRequest(map[string]any{
				"deal_id": "d1", "target": "AWAITING_PAYMENT",
			}))
		}},
		{"CancelDeal", func() (*mcp.CallToolResult, error) {
			return h.HandleCancelDeal(context.Background(), makeRequest(map[string]any{"deal_id": "d1"}))
		}},
		{"SubmitCreative", func() (*mcp.CallToolResult, error) {
			return h.HandleSubmitCreative(context.Background(), makeRequest(map[string]any{
				"deal_id": "d1", "content": "x",
			}))
		}},
		{"ApproveCreative", func() (*mcp.CallToolResult, error) {
			return h.HandleApproveCreative(context.Background(), makeRequest(map[string]any{
				"deal_id": "d1", "creative_id": "c1",
			}))
		}},
		{"SchedulePost", func() (*mcp.CallToolResult, error) {
			return h.HandleSchedulePost(context.Background(), makeRequest(map[string]any{
				"deal_id": "d1", "post_at": "2026-09-01T12:00:00Z",
			}))
		}},
		{"InitiatePayment", func() (*mcp.CallToolResult, error) {
			return h.HandleInitiatePayment(context.Background(), makeRequest(map[string]any{"deal_id": "d1"}))
		}},
		{"CheckPayment", func() (*mcp.CallToolResult, error) {
			return h.HandleCheckPayment(context.Background(), makeRequest(map[string]any{"deal_id": "d1"}))
		}},
		{"SweepPayments", func() (*mcp.CallToolResult, error) {
			return h.HandleSweepPayments(context.Background(), makeRequest(nil))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.fn()
			assert.NoError(t, err, "handler should never return Go error")
			assert.NotNil(t, result, "handler should always return a result")
			assert.True(t, result.IsError, "unreachable server should produce isError result")
		})
	}
}
