package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// ClientNotifier pushes notifications to connected clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier over MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via the MCP server.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the client's session.
// Best-effort: returns nil if the client is not connected.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(clientID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session went away between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// Broadcast notifies every registered client and returns how many were
// reached. Clients whose session is gone are dropped from the registry.
func (n *MCPNotifier) Broadcast(_ context.Context, payload map[string]any) int {
	sent := 0
	for _, clientID := range n.sessions.Clients() {
		sessionID, ok := n.sessions.SessionFor(clientID)
		if !ok {
			continue
		}
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
			continue
		}
		if err == nil {
			sent++
		}
	}
	return sent
}
