package notebook

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vishaltelangre/nerdcalci/kit"
)

// RegisterMCP registers notebook tools on an MCP server.
func (n *Notebook) RegisterMCP(srv *mcp.Server) {
	n.registerListDocumentsTool(srv)
	n.registerCreateDocumentTool(srv)
	n.registerGetDocumentTool(srv)
	n.registerRenameDocumentTool(srv)
	n.registerDeleteDocumentTool(srv)
	n.registerDuplicateDocumentTool(srv)
	n.registerTogglePinTool(srv)
	n.registerInsertLineTool(srv)
	n.registerUpdateLineTool(srv)
	n.registerRemoveLineTool(srv)
	n.registerUndoTool(srv)
	n.registerRedoTool(srv)
	n.registerRenderTool(srv)
}

// register wires an endpoint as an MCP tool with call logging applied.
func (n *Notebook) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	wrapped := kit.Chain(kit.LogCalls(n.logger, tool.Name))(endpoint)
	kit.RegisterMCPTool(srv, tool, wrapped, decode)
}

// inputSchema builds a JSON Schema object with type "object".
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

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- list_documents ---

type listDocumentsRequest struct{}

func (n *Notebook) registerListDocumentsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_list_documents",
		Description: "List all calculation documents, pinned first, most recently modified first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return n.ListDocuments(ctx)
	}
	n.register(srv, tool, endpoint, decodeInto[listDocumentsRequest])
}

// --- create_document ---

type createDocumentRequest struct {
	Name string `json:"name"`
}

func (n *Notebook) registerCreateDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_create_document",
		Description: "Create a new, empty calculation document.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Document name, at most 50 characters"},
		}, []string{"name"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*createDocumentRequest)
		return n.CreateDocument(ctx, r.Name)
	}
	n.register(srv, tool, endpoint, decodeInto[createDocumentRequest])
}

// --- get_document ---

type getDocumentRequest struct {
	DocumentID int64 `json:"document_id"`
}

type documentWithLines struct {
	Document *Document `json:"document"`
	Lines    []*Line   `json:"lines"`
	CanUndo  bool      `json:"can_undo"`
	CanRedo  bool      `json:"can_redo"`
}

func (n *Notebook) registerGetDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_get_document",
		Description: "Get a document with its lines and computed results.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getDocumentRequest)
		doc, err := n.GetDocument(ctx, r.DocumentID)
		if err != nil {
			return nil, err
		}
		lines, err := n.Lines(ctx, r.DocumentID)
		if err != nil {
			return nil, err
		}
		return &documentWithLines{
			Document: doc,
			Lines:    lines,
			CanUndo:  n.CanUndo(r.DocumentID),
			CanRedo:  n.CanRedo(r.DocumentID),
		}, nil
	}
	n.register(srv, tool, endpoint, decodeInto[getDocumentRequest])
}

// --- rename_document ---

type renameDocumentRequest struct {
	DocumentID int64  `json:"document_id"`
	Name       string `json:"name"`
}

func (n *Notebook) registerRenameDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_rename_document",
		Description: "Rename a document.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
			"name":        map[string]any{"type": "string", "description": "New name, at most 50 characters"},
		}, []string{"document_id", "name"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*renameDocumentRequest)
		if err := n.RenameDocument(ctx, r.DocumentID, r.Name); err != nil {
			return nil, err
		}
		return n.GetDocument(ctx, r.DocumentID)
	}
	n.register(srv, tool, endpoint, decodeInto[renameDocumentRequest])
}

// --- delete_document ---

type deleteDocumentRequest struct {
	DocumentID int64 `json:"document_id"`
}

func (n *Notebook) registerDeleteDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_delete_document",
		Description: "Delete a document, its lines, and its edit history.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*deleteDocumentRequest)
		if err := n.DeleteDocument(ctx, r.DocumentID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": r.DocumentID}, nil
	}
	n.register(srv, tool, endpoint, decodeInto[deleteDocumentRequest])
}

// --- duplicate_document ---

type duplicateDocumentRequest struct {
	DocumentID int64  `json:"document_id"`
	Name       string `json:"name"`
}

func (n *Notebook) registerDuplicateDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_duplicate_document",
		Description: "Copy a document's lines into a new document.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Source document ID"},
			"name":        map[string]any{"type": "string", "description": "Name for the copy"},
		}, []string{"document_id", "name"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*duplicateDocumentRequest)
		return n.DuplicateDocument(ctx, r.DocumentID, r.Name)
	}
	n.register(srv, tool, endpoint, decodeInto[duplicateDocumentRequest])
}

// --- toggle_pin ---

type togglePinRequest struct {
	DocumentID int64 `json:"document_id"`
}

func (n *Notebook) registerTogglePinTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_toggle_pin",
		Description: "Pin or unpin a document. At most 10 documents can be pinned.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*togglePinRequest)
		return n.TogglePin(ctx, r.DocumentID)
	}
	n.register(srv, tool, endpoint, decodeInto[togglePinRequest])
}

// --- insert_line ---

type insertLineRequest struct {
	DocumentID int64  `json:"document_id"`
	Position   *int   `json:"position,omitempty"`
	Expression string `json:"expression"`
}

func (n *Notebook) registerInsertLineTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_insert_line",
		Description: "Insert a line into a document and re-evaluate it. Omit position to append.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
			"position":    map[string]any{"type": "integer", "description": "Zero-based position; omitted means append"},
			"expression":  map[string]any{"type": "string", "description": "Expression text"},
		}, []string{"document_id", "expression"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*insertLineRequest)
		if r.Position == nil {
			return n.AppendLine(ctx, r.DocumentID, r.Expression)
		}
		return n.InsertLine(ctx, r.DocumentID, *r.Position, r.Expression)
	}
	n.register(srv, tool, endpoint, decodeInto[insertLineRequest])
}

// --- update_line ---

type updateLineRequest struct {
	LineID     int64  `json:"line_id"`
	Expression string `json:"expression"`
}

func (n *Notebook) registerUpdateLineTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_update_line",
		Description: "Replace a line's expression and re-evaluate the document.",
		InputSchema: inputSchema(map[string]any{
			"line_id":    map[string]any{"type": "integer", "description": "Line ID"},
			"expression": map[string]any{"type": "string", "description": "New expression text"},
		}, []string{"line_id", "expression"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateLineRequest)
		return n.UpdateLine(ctx, r.LineID, r.Expression)
	}
	n.register(srv, tool, endpoint, decodeInto[updateLineRequest])
}

// --- remove_line ---

type removeLineRequest struct {
	LineID int64 `json:"line_id"`
}

func (n *Notebook) registerRemoveLineTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_remove_line",
		Description: "Delete a line and re-evaluate the document.",
		InputSchema: inputSchema(map[string]any{
			"line_id": map[string]any{"type": "integer", "description": "Line ID"},
		}, []string{"line_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*removeLineRequest)
		return n.RemoveLine(ctx, r.LineID)
	}
	n.register(srv, tool, endpoint, decodeInto[removeLineRequest])
}

// --- undo / redo ---

type undoRequest struct {
	DocumentID int64 `json:"document_id"`
}

func (n *Notebook) registerUndoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_undo",
		Description: "Undo the most recent structural edit (line insert or delete) to a document.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*undoRequest)
		return n.Undo(ctx, r.DocumentID)
	}
	n.register(srv, tool, endpoint, decodeInto[undoRequest])
}

func (n *Notebook) registerRedoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_redo",
		Description: "Redo the most recently undone edit to a document.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*undoRequest)
		return n.Redo(ctx, r.DocumentID)
	}
	n.register(srv, tool, endpoint, decodeInto[undoRequest])
}

// --- render ---

type renderRequest struct {
	DocumentID int64 `json:"document_id"`
}

func (n *Notebook) registerRenderTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "notebook_render",
		Description: "Render a document as plain text with results annotated as comments.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "integer", "description": "Document ID"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*renderRequest)
		text, err := n.RenderText(ctx, r.DocumentID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": text}, nil
	}
	n.register(srv, tool, endpoint, decodeInto[renderRequest])
}
