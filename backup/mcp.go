package backup

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vishaltelangre/nerdcalci/kit"
)

// RegisterMCP registers backup tools on an MCP server.
func (m *Manager) RegisterMCP(srv *mcp.Server) {
	m.registerBackupNowTool(srv)
	m.registerListBackupsTool(srv)
	m.registerRestoreTool(srv)
}

// register wires an endpoint as an MCP tool with call logging applied.
func (m *Manager) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	wrapped := kit.Chain(kit.LogCalls(m.logger, tool.Name))(endpoint)
	kit.RegisterMCPTool(srv, tool, wrapped, decode)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (m *Manager) registerBackupNowTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "backup_now",
		Description: "Write a backup archive of every document to the configured location.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return m.BackupNow(ctx)
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}
	m.register(srv, tool, endpoint, decode)
}

func (m *Manager) registerListBackupsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "backup_list",
		Description: "List existing backup archives in the configured location, newest first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		infos, err := m.ListBackups(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"backups": infos}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}
	m.register(srv, tool, endpoint, decode)
}

type restoreRequest struct {
	ID string `json:"id"`
}

func (m *Manager) registerRestoreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "backup_restore",
		Description: "Restore all documents from a backup archive. Existing documents with matching names are overwritten.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Backup ID from backup_list"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*restoreRequest)
		info, err := m.FindBackup(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		count, err := m.Restore(ctx, *info)
		if err != nil {
			return nil, err
		}
		return map[string]any{"restored": count}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r restoreRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	m.register(srv, tool, endpoint, decode)
}
