// Package mcp exposes an open diagram to agents as MCP tools. Every tool
// call runs under the session lock, so agents and the autosave scheduler
// never see a half-applied command.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/diagrama/internal/script"
	"github.com/rendis/diagrama/internal/session"
	"github.com/rendis/diagrama/internal/store"
	"github.com/rendis/diagrama/internal/streaming"
)

// DiagramServerDeps holds the dependencies for creating a DiagramServer.
type DiagramServerDeps struct {
	Session *session.Locked
	Library store.DocumentStore
	Hub     streaming.EventHub
	Scripts *script.Interpreter
	Logger  *slog.Logger
}

// DiagramServer wraps an MCP server with diagram tool handlers.
type DiagramServer struct {
	session   *session.Locked
	library   store.DocumentStore
	hub       streaming.EventHub
	scripts   *script.Interpreter
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewDiagramServer creates a DiagramServer with all tools registered.
func NewDiagramServer(deps DiagramServerDeps) *DiagramServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	scripts := deps.Scripts
	if scripts == nil {
		scripts = script.NewInterpreter(nil, logger)
	}

	s := &DiagramServer{
		session:  deps.Session,
		library:  deps.Library,
		hub:      deps.Hub,
		scripts:  scripts,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"diagrama",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Diagrama edits one open diagram of shapes, containers and connectors. "+
			"Use diagram.add_item, diagram.connect and diagram.update_item to build it, diagram.select and diagram.query to inspect it, "+
			"diagram.history to preview or restore past states, diagram.render to export it, and diagram.document to open and save files or library documents."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Scene events are forwarded to registered clients meanwhile.
func (s *DiagramServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.hub != nil {
		go s.forwardEvents(ctx)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DiagramServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forwardEvents pushes hub events to every client that identified itself.
func (s *DiagramServer) forwardEvents(ctx context.Context) {
	ch, unsubscribe, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		s.logger.Warn("event forwarding disabled", "error", err)
		return
	}
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload := map[string]any{
				"document_id": evt.DocumentID,
				"event_type":  evt.EventType,
			}
			if evt.ItemID != "" {
				payload["item_id"] = evt.ItemID
			}
			if evt.Payload != nil {
				payload["payload"] = evt.Payload
			}
			s.notifier.Broadcast(ctx, payload)
		}
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *DiagramServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: stateTool(), Handler: s.handleState},
		{Tool: addItemTool(), Handler: s.handleAddItem},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: updateItemTool(), Handler: s.handleUpdateItem},
		{Tool: styleConnectorTool(), Handler: s.handleStyleConnector},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: arrangeTool(), Handler: s.handleArrange},
		{Tool: navigateTool(), Handler: s.handleNavigate},
		{Tool: clipboardTool(), Handler: s.handleClipboard},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: selectTool(), Handler: s.handleSelect},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: documentTool(), Handler: s.handleDocument},
	}
}

// --- Tool definitions ---

func clientIDOption() mcp.ToolOption {
	return mcp.WithString("client_id", mcp.Description("Caller id; registers the MCP session for scene change notifications"))
}

func stateTool() mcp.Tool {
	return mcp.NewTool("diagram.state",
		mcp.WithDescription("Describe the open diagram: name, path, modified flag, history mode and the entered container"),
		mcp.WithBoolean("include_document", mcp.Description("Include the full serialized document")),
		clientIDOption(),
	)
}

func addItemTool() mcp.Tool {
	return mcp.NewTool("diagram.add_item",
		mcp.WithDescription("Add an item of a kind at a position. Dropped on a container it becomes a child"),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Item kind: rectangle, ellipse, diamond, text, container, image, script, persona, c4_persona or user_image_<path>")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Top-left x in scene coordinates")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Top-left y in scene coordinates")),
		mcp.WithObject("properties", mcp.Description("Properties merged over the kind defaults (text, fill_color, border_color, font_size, ...)")),
		clientIDOption(),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("diagram.connect",
		mcp.WithDescription("Add a connector between two different items"),
		mcp.WithString("start_id", mcp.Required(), mcp.Description("Start item id")),
		mcp.WithString("end_id", mcp.Required(), mcp.Description("End item id")),
		clientIDOption(),
	)
}

func updateItemTool() mcp.Tool {
	return mcp.NewTool("diagram.update_item",
		mcp.WithDescription("Move, resize or edit the properties of an item"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithNumber("x", mcp.Description("New top-left x")),
		mcp.WithNumber("y", mcp.Description("New top-left y")),
		mcp.WithNumber("width", mcp.Description("New width (minimum 10)")),
		mcp.WithNumber("height", mcp.Description("New height (minimum 10)")),
		mcp.WithObject("properties", mcp.Description("Properties to merge")),
		clientIDOption(),
	)
}

func styleConnectorTool() mcp.Tool {
	return mcp.NewTool("diagram.style_connector",
		mcp.WithDescription("Change a connector's style, label, routing or endpoints"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Connector id")),
		mcp.WithString("line_color", mcp.Description("Line color, #rrggbb or #aarrggbb")),
		mcp.WithNumber("line_width", mcp.Description("Line width")),
		mcp.WithNumber("arrow_size", mcp.Description("Arrowhead size, 0 hides it")),
		mcp.WithString("text", mcp.Description("Label")),
		mcp.WithNumber("font_size", mcp.Description("Label font size")),
		mcp.WithString("routing", mcp.Enum("direct", "orthogonal"), mcp.Description("Path routing")),
		mcp.WithString("start_id", mcp.Description("Reconnect the start to this item")),
		mcp.WithString("end_id", mcp.Description("Reconnect the end to this item")),
		clientIDOption(),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("diagram.delete",
		mcp.WithDescription("Delete items (with their children and connectors) or connectors. Unknown ids are skipped"),
		mcp.WithArray("ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Item or connector ids")),
		clientIDOption(),
	)
}

func arrangeTool() mcp.Tool {
	return mcp.NewTool("diagram.arrange",
		mcp.WithDescription("Change stacking order or move an item into a container"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("bring_to_front", "send_to_back", "bring_forward", "send_backward", "reparent"),
			mcp.Description("Arrangement to apply"),
		),
		mcp.WithString("container_id", mcp.Description("Target container for reparent; empty for top level")),
		clientIDOption(),
	)
}

func navigateTool() mcp.Tool {
	return mcp.NewTool("diagram.navigate",
		mcp.WithDescription("Enter a container to show only its children, or leave one level"),
		mcp.WithString("action", mcp.Required(), mcp.Enum("enter", "leave"), mcp.Description("Navigation step")),
		mcp.WithString("container_id", mcp.Description("Container to enter")),
		clientIDOption(),
	)
}

func clipboardTool() mcp.Tool {
	return mcp.NewTool("diagram.clipboard",
		mcp.WithDescription("Copy an item (with its children) or a connector, or paste the clipboard into the entered container"),
		mcp.WithString("action", mcp.Required(), mcp.Enum("copy", "paste"), mcp.Description("Clipboard operation")),
		mcp.WithString("id", mcp.Description("Item or connector to copy")),
		mcp.WithNumber("x", mcp.Description("Paste position x; default offsets from the source")),
		mcp.WithNumber("y", mcp.Description("Paste position y")),
		clientIDOption(),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("diagram.history",
		mcp.WithDescription("List, preview, restore or clear the snapshot history"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("list", "preview", "present", "restore", "clear", "checkpoint"),
			mcp.Description("History operation"),
		),
		mcp.WithNumber("index", mcp.Description("Entry index for preview and restore")),
		mcp.WithString("description", mcp.Description("Checkpoint description")),
		clientIDOption(),
	)
}

func selectTool() mcp.Tool {
	return mcp.NewTool("diagram.select",
		mcp.WithDescription("Return the ids of items and connectors matching a CEL predicate over `item` and `scene`"),
		mcp.WithString("predicate", mcp.Required(), mcp.Description(`CEL boolean expression, e.g. item.kind == "container" && item.width > 150`)),
		clientIDOption(),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("diagram.query",
		mcp.WithDescription("Run a jq program over the serialized document"),
		mcp.WithString("program", mcp.Required(), mcp.Description("jq program, e.g. [.items[] | select(.type == \"container\") | .id]. item($id), children($id), roots and links($id) are predefined")),
		clientIDOption(),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("diagram.render",
		mcp.WithDescription("Export the visible diagram. Returns a PNG image, SVG or DOT source, Mermaid flowchart syntax or a text outline"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("png", "svg", "dot", "mermaid", "outline"),
			mcp.Description("Output format"),
		),
		mcp.WithBoolean("all", mcp.Description("Include items hidden by the entered container")),
		mcp.WithNumber("scale", mcp.Description("PNG scale factor (default 1)")),
		clientIDOption(),
	)
}

func documentTool() mcp.Tool {
	return mcp.NewTool("diagram.document",
		mcp.WithDescription("Create, open and save diagrams as files or in the document library"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("new", "open", "save", "save_as", "library_save", "library_open", "library_list", "revisions", "restore_revision"),
			mcp.Description("Document operation"),
		),
		mcp.WithString("path", mcp.Description("File path for open and save_as")),
		mcp.WithString("id", mcp.Description("Library document id for library_open and revisions")),
		mcp.WithString("name", mcp.Description("Library name for library_save, or a name filter for library_list")),
		mcp.WithNumber("sequence", mcp.Description("Revision sequence for restore_revision")),
		mcp.WithBoolean("discard_changes", mcp.Description("Allow new and open to drop unsaved changes")),
		clientIDOption(),
	)
}
