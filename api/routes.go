package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/glowbook/chat-bridge/inbox"
	"github.com/glowbook/chat-bridge/models"
	"github.com/glowbook/chat-bridge/reconcile"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    s.service.Status(),
	})
}

func (s *Server) handleGetConversations(c *gin.Context) {
	filter := inbox.Filter{
		Query:      c.Query("q"),
		UnreadOnly: c.Query("unread") == "true",
	}

	conversations := s.service.Conversations(c.Request.Context(), filter)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    conversations,
	})
}

func (s *Server) handleGetMessages(c *gin.Context) {
	conversationID := c.Param("id")

	limit := 50 // Default limit
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.service.Messages(c.Request.Context(), conversationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: fmt.Sprintf("Failed to get messages: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    messages,
	})
}

func (s *Server) handleOpenConversation(c *gin.Context) {
	conversationID := c.Param("id")

	if err := s.service.OpenConversation(c.Request.Context(), conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: fmt.Sprintf("Failed to open conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Conversation joined",
	})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	s.service.MarkRead(c.Request.Context(), c.Param("id"))

	// Optimistic on purpose; a failed server call is reconciled by the
	// next refresh
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Conversation marked read",
	})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}

	if req.Body == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: "Message body is required",
		})
		return
	}

	if req.ContentType == "" {
		req.ContentType = models.ContentText
	}

	msg, err := s.service.SendMessage(c.Request.Context(), req.Body, req.ContentType)
	if err != nil {
		if errors.Is(err, reconcile.ErrNoActiveConversation) {
			c.JSON(http.StatusConflict, Response{
				Success: false,
				Message: "No conversation joined",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: fmt.Sprintf("Failed to send message: %v", err),
			Data:    msg,
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    msg,
	})
}

func (s *Server) handleResendMessage(c *gin.Context) {
	var req ResendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CorrelationID == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: "correlation_id is required",
		})
		return
	}

	msg, err := s.service.ResendMessage(c.Request.Context(), req.CorrelationID)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownCorrelation) {
			c.JSON(http.StatusNotFound, Response{
				Success: false,
				Message: "Unknown correlation id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: fmt.Sprintf("Failed to resend message: %v", err),
			Data:    msg,
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    msg,
	})
}

func (s *Server) handleTyping(c *gin.Context) {
	s.service.Keystroke()

	c.JSON(http.StatusOK, Response{
		Success: true,
	})
}

func (s *Server) handleTypingPeers(c *gin.Context) {
	peers := s.service.TypingPeers()
	if peers == nil {
		peers = []string{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    peers,
	})
}
