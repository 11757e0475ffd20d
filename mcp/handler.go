package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func listConversationsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var query string
	unreadOnly := false
	limit := 20
	page := 0

	if q, ok := request.Params.Arguments["query"].(string); ok {
		query = q
	}

	if u, ok := request.Params.Arguments["unread_only"].(bool); ok {
		unreadOnly = u
	}

	if l, ok := request.Params.Arguments["limit"].(float64); ok {
		limit = int(l)
	}

	if p, ok := request.Params.Arguments["page"].(float64); ok {
		page = int(p)
	}

	conversations, err := ListConversations(query, unreadOnly, limit, page)
	if err != nil {
		return nil, err
	}

	conversationsData, err := json.Marshal(conversations)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(conversationsData)), nil
}

func searchConversationsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, ok := request.Params.Arguments["query"].(string)
	if !ok || query == "" {
		return nil, errors.New("query must be a non-empty string")
	}

	limit := 20
	if l, ok := request.Params.Arguments["limit"].(float64); ok {
		limit = int(l)
	}

	conversations, err := ListConversations(query, false, limit, 0)
	if err != nil {
		return nil, err
	}

	conversationsData, err := json.Marshal(conversations)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(conversationsData)), nil
}

func getConversationHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, ok := request.Params.Arguments["conversation_id"].(string)
	if !ok {
		return nil, errors.New("conversation_id must be a string")
	}

	conversation, err := GetConversation(conversationID)
	if err != nil {
		return nil, err
	}

	conversationData, err := json.Marshal(conversation)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(conversationData)), nil
}

func listMessagesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var conversationID, senderID, query string
	limit := 20
	page := 0

	if c, ok := request.Params.Arguments["conversation_id"].(string); ok {
		conversationID = c
	}

	if s, ok := request.Params.Arguments["sender_id"].(string); ok {
		senderID = s
	}

	if q, ok := request.Params.Arguments["query"].(string); ok {
		query = q
	}

	if l, ok := request.Params.Arguments["limit"].(float64); ok {
		limit = int(l)
	}

	if p, ok := request.Params.Arguments["page"].(float64); ok {
		page = int(p)
	}

	messages, err := ListMessages(conversationID, senderID, query, limit, page)
	if err != nil {
		return nil, err
	}

	messagesData, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(messagesData)), nil
}

func getMessageContextHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	messageID, ok := request.Params.Arguments["message_id"].(string)
	if !ok {
		return nil, errors.New("message_id must be a string")
	}

	before := 5
	if b, ok := request.Params.Arguments["before"].(float64); ok {
		before = int(b)
	}

	after := 5
	if a, ok := request.Params.Arguments["after"].(float64); ok {
		after = int(a)
	}

	messageContext, err := GetMessageContext(messageID, before, after)
	if err != nil {
		return nil, err
	}

	contextData, err := json.Marshal(messageContext)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(contextData)), nil
}

func getLastInteractionHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID, ok := request.Params.Arguments["customer_id"].(string)
	if !ok {
		return nil, errors.New("customer_id must be a string")
	}

	message, err := GetLastInteraction(customerID)
	if err != nil {
		return nil, err
	}

	messageData, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(messageData)), nil
}

func sendMessageHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, ok := request.Params.Arguments["conversation_id"].(string)
	if !ok {
		return nil, errors.New("conversation_id must be a string")
	}

	body, ok := request.Params.Arguments["body"].(string)
	if !ok {
		return nil, errors.New("body must be a string")
	}

	success, message := SendMessage(conversationID, body)
	if !success {
		return nil, fmt.Errorf("send failed: %s", message)
	}

	return mcp.NewToolResultText(message), nil
}
