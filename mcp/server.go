package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a new MCP server
func NewMCPServer(name string, version string) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
	)

	listConversationsTool := mcp.NewTool("list_conversations",
		mcp.WithDescription("Retrieve salon chat conversations matching specified criteria"),
		mcp.WithString("query",
			mcp.Description("Optional search term matched against customer names"),
		),
		mcp.WithBoolean("unread_only",
			mcp.Description("Whether to keep only conversations with unread messages (default false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of conversations to return (default 20)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number for pagination (default 0)"),
		),
	)

	searchConversationsTool := mcp.NewTool("search_conversations",
		mcp.WithDescription("Search salon chat conversations by customer name"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search term matched against customer names"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of conversations to return (default 20)"),
		),
	)

	getConversationTool := mcp.NewTool("get_conversation",
		mcp.WithDescription("Retrieve metadata of a salon chat conversation by id"),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Id of the conversation to retrieve"),
		),
	)

	listMessagesTool := mcp.NewTool("list_messages",
		mcp.WithDescription("Retrieve chat messages matching specified criteria"),
		mcp.WithString("conversation_id",
			mcp.Description("Optional conversation id to filter messages by thread"),
		),
		mcp.WithString("sender_id",
			mcp.Description("Optional participant id to filter messages by sender"),
		),
		mcp.WithString("query",
			mcp.Description("Optional search term to filter messages by body text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default 20)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number for pagination (default 0)"),
		),
	)

	getMessageContextTool := mcp.NewTool("get_message_context",
		mcp.WithDescription("Retrieve context around a specific chat message"),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Id of the message to get context for"),
		),
		mcp.WithNumber("before",
			mcp.Description("Number of messages to include before the target message (default 5)"),
		),
		mcp.WithNumber("after",
			mcp.Description("Number of messages to include after the target message (default 5)"),
		),
	)

	getLastInteractionTool := mcp.NewTool("get_last_interaction",
		mcp.WithDescription("Retrieve the most recent chat message involving the customer"),
		mcp.WithString("customer_id",
			mcp.Required(),
			mcp.Description("Id of the customer to search for"),
		),
	)

	sendMessageTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a chat message into a salon conversation through the bridge"),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Id of the conversation to send into"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("The text of the message to send"),
		),
	)

	s.AddTool(listConversationsTool, listConversationsHandler)
	s.AddTool(searchConversationsTool, searchConversationsHandler)
	s.AddTool(getConversationTool, getConversationHandler)
	s.AddTool(listMessagesTool, listMessagesHandler)
	s.AddTool(getMessageContextTool, getMessageContextHandler)
	s.AddTool(getLastInteractionTool, getLastInteractionHandler)
	s.AddTool(sendMessageTool, sendMessageHandler)

	return s
}

// StartMCPServer starts the MCP server
func StartMCPServer(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
