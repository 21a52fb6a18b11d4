package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the tonpost MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetDeal = mcp.NewTool("get_deal",
	mcp.WithDescription(
		"Look up an ad deal by ID. Returns the current lifecycle status, "+
			"both parties, the agreed price in TON, and the scheduled post time if set."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID (e.g. 'deal_abc123')")),
)

var ToolCreateDeal = mcp.NewTool("create_deal",
	mcp.WithDescription(
		"Open a new ad deal between a channel owner and an advertiser. "+
			"The deal starts in NEGOTIATING; move it to AWAITING_PAYMENT with advance_deal "+
			"once terms are agreed."),
	mcp.WithString("channel_owner_id",
		mcp.Required(),
		mcp.Description("User ID of the channel owner selling the ad slot")),
	mcp.WithString("advertiser_id",
		mcp.Required(),
		mcp.Description("User ID of the advertiser buying the slot")),
	mcp.WithString("price_ton",
		mcp.Required(),
		mcp.Description("Agreed price in TON (e.g. '5' or '2.5')")),
)

var ToolAdvanceDeal = mcp.NewTool("advance_deal",
	mcp.WithDescription(
		"Move a deal to the next lifecycle status. Valid targets depend on the "+
			"current status, e.g. NEGOTIATING can go to AWAITING_PAYMENT. "+
			"Illegal transitions are rejected by the platform."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
	mcp.WithString("target",
		mcp.Required(),
		mcp.Description("Target status (e.g. 'AWAITING_PAYMENT', 'CREATIVE_PENDING')")),
)

var ToolCancelDeal = mcp.NewTool("cancel_deal",
	mcp.WithDescription(
		"Cancel a deal that has not completed. Escrowed funds, if any, are "+
			"refunded to the advertiser by the platform."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
	mcp.WithString("reason",
		mcp.Description("Optional explanation recorded with the cancellation")),
)

var ToolSubmitCreative = mcp.NewTool("submit_creative",
	mcp.WithDescription(
		"Submit ad content (the creative) for a deal in CREATIVE_PENDING. "+
			"Each submission creates a new version for the channel owner to review."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
	mcp.WithString("content",
		mcp.Required(),
		mcp.Description("The ad text to post in the channel")),
)

var ToolApproveCreative = mcp.NewTool("approve_creative",
	mcp.WithDescription(
		"Approve a submitted creative version on behalf of the channel owner. "+
			"The deal moves to CREATIVE_APPROVED and can then be scheduled."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
	mcp.WithString("creative_id",
		mcp.Required(),
		mcp.Description("The creative ID from submit_creative or get_deal")),
)

var ToolSchedulePost = mcp.NewTool("schedule_post",
	mcp.WithDescription(
		"Schedule the approved creative for publication. The platform publishes "+
			"it to the channel at the given time and starts the verification window."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
	mcp.WithString("post_at",
		mcp.Required(),
		mcp.Description("Publication time, RFC 3339 (e.g. '2026-09-01T12:00:00Z')")),
)

var ToolInitiatePayment = mcp.NewTool("initiate_payment",
	mcp.WithDescription(
		"Create the escrow for a deal in AWAITING_PAYMENT. Returns the deposit "+
			"address and a ton:// link the advertiser opens in their wallet app. "+
			"Funds stay in escrow until the post survives verification."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
)

var ToolCheckPayment = mcp.NewTool("check_payment",
	mcp.WithDescription(
		"Check whether the advertiser's deposit has arrived for a deal. "+
			"Polling this is what detects the deposit and moves the deal to PAYMENT_RECEIVED."),
	mcp.WithString("deal_id",
		mcp.Required(),
		mcp.Description("The deal ID")),
)

var ToolSweepPayments = mcp.NewTool("sweep_stuck_payments",
	mcp.WithDescription(
		"Operator tool: reconcile payments stuck in PAID against on-chain state "+
			"and retry releases that previously timed out. Requires the admin secret."),
)
