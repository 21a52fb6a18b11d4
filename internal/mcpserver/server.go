package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all tonpost tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("tonpost", "1.0.0")
	client := NewTonpostClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetDeal, h.HandleGetDeal)
	s.AddTool(ToolCreateDeal, h.HandleCreateDeal)
	s.AddTool(ToolAdvanceDeal, h.HandleAdvanceDeal)
	s.AddTool(ToolCancelDeal, h.HandleCancelDeal)
	s.AddTool(ToolSubmitCreative, h.HandleSubmitCreative)
	s.AddTool(ToolApproveCreative, h.HandleApproveCreative)
	s.AddTool(ToolSchedulePost, h.HandleSchedulePost)
	s.AddTool(ToolInitiatePayment, h.HandleInitiatePayment)
	s.AddTool(ToolCheckPayment, h.HandleCheckPayment)
	s.AddTool(ToolSweepPayments, h.HandleSweepPayments)

	return s
}
