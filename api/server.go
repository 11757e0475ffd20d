package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glowbook/chat-bridge/models"
	"github.com/glowbook/chat-bridge/services"
)

// Server represents the API handler
type Server struct {
	service services.Service
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(service services.Service, port string) *Server {
	router := gin.Default()

	return &Server{
		service: service,
		router:  router,
		server: &http.Server{
			Addr:    ":" + port,
			Handler: router,
		},
	}
}

// SendMessageRequest represents the request body for sending messages
type SendMessageRequest struct {
	Body        string             `json:"body"`
	ContentType models.ContentType `json:"content_type"`
}

// ResendMessageRequest represents the request body for resending a stuck
// message
type ResendMessageRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// Response represents a generic API response
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// RegisterRoutes registers all API routes
func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/conversations", s.handleGetConversations)
		api.GET("/conversations/:id/messages", s.handleGetMessages)
		api.POST("/conversations/:id/open", s.handleOpenConversation)
		api.POST("/conversations/:id/read", s.handleMarkRead)
		api.POST("/send", s.handleSendMessage)
		api.POST("/resend", s.handleResendMessage)
		api.POST("/typing", s.handleTyping)
		api.GET("/typing", s.handleTypingPeers)
	}
}

func (s *Server) Start() error {
	s.registerRoutes(s.router)

	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
