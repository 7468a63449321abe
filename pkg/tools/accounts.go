package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/veslink/calendar-mcp/pkg/accounts"
)

// RegisterAccountTools registers tools over the locally stored Google
// accounts.
func RegisterAccountTools(s *mcpserver.MCPServer, manager *accounts.Manager) {
	listAccountsTool := mcp.NewTool("calendar_list_accounts",
		mcp.WithDescription("List the Google accounts with stored credentials and which one is active"),
	)

	s.AddTool(listAccountsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := accountsSummary(manager)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(summary)
	})
}

func accountsSummary(manager *accounts.Manager) (map[string]interface{}, error) {
	names, err := manager.Accounts()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"active":   manager.ActiveAccount(),
		"accounts": names,
	}, nil
}
