package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowbook/chat-bridge/api"
	"github.com/glowbook/chat-bridge/channel"
	"github.com/glowbook/chat-bridge/config"
	"github.com/glowbook/chat-bridge/db"
	"github.com/glowbook/chat-bridge/models"
	"github.com/glowbook/chat-bridge/rest"
	"github.com/glowbook/chat-bridge/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	if err := os.MkdirAll(cfg.StoreDir, 0755); err != nil {
		log.Fatalf("Failed to create store directory: %v", err)
	}

	inboxStore, err := db.NewDB(ctx, cfg.StoreDir)
	if err != nil {
		log.Fatalf("Failed to initialize inbox store: %v", err)
	}
	defer inboxStore.Close()

	platformAPI := rest.NewClient(cfg.APIBaseURL, cfg.APIToken)

	role := models.Role(cfg.Role)
	dial := func(ctx context.Context) (*channel.Client, error) {
		return channel.Connect(ctx, channel.Config{
			URL:     cfg.SocketURL,
			Token:   cfg.ChatToken,
			Role:    role,
			SalonID: cfg.SalonID,
			UserID:  cfg.UserID,
		}, platformAPI)
	}

	service, err := services.NewService(ctx, dial, platformAPI, inboxStore, services.Options{
		Role:           role,
		SalonID:        cfg.SalonID,
		UserID:         cfg.UserID,
		TypingDebounce: cfg.TypingDebounce,
		TypingExpiry:   cfg.TypingExpiry,
		PendingTimeout: cfg.PendingTimeout,
		ReconnectPause: cfg.ReconnectPause,
	})
	if err != nil {
		log.Fatalf("Failed to initialize chat service: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	apiServer := api.NewServer(service, cfg.Port)

	go func() {
		<-c
		log.Println("shutting down...")

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := apiServer.Stop(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		if err := service.Close(); err != nil {
			log.Printf("Chat service shutdown error: %v", err)
		}
		log.Println("Server gracefully stopped")
	}()

	log.Printf("Chat bridge starting on port %s", cfg.Port)
	if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
