package main

import (
	"log"

	"github.com/glowbook/chat-bridge/mcp"
)

func main() {
	mcpServer := mcp.NewMCPServer("Salon Chat MCP API", "1.0.0")
	if err := mcp.StartMCPServer(mcpServer); err != nil {
		log.Fatalf("Failed to start MCP server: %v", err)
	}
}
