package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct to hold the configuration
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	StoreDir string `envconfig:"STORE_DIR" default:"./store"`

	APIBaseURL string `envconfig:"API_BASE_URL" default:"https://api.glowbook.app/v1"`
	SocketURL  string `envconfig:"SOCKET_URL" default:"wss://chat.glowbook.app/ws"`
	APIToken   string `envconfig:"API_TOKEN"`

	// ChatToken is optional; when empty the bridge requests one from the
	// chat token endpoint before connecting.
	ChatToken string `envconfig:"CHAT_TOKEN"`

	Role    string `envconfig:"ROLE" default:"staff"`
	SalonID string `envconfig:"SALON_ID"`
	UserID  string `envconfig:"USER_ID"`

	TypingDebounce time.Duration `envconfig:"TYPING_DEBOUNCE" default:"2s"`
	TypingExpiry   time.Duration `envconfig:"TYPING_EXPIRY" default:"10s"`
	PendingTimeout time.Duration `envconfig:"PENDING_TIMEOUT" default:"15s"`
	ReconnectPause time.Duration `envconfig:"RECONNECT_PAUSE" default:"5s"`
}

// Load function to load the configuration from the environment variables
func Load() (Config, error) {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("No .env file found")
	}

	var c Config
	err = envconfig.Process("", &c)
	if err != nil {
		return Config{}, fmt.Errorf("unable to get envconfig: %w", err)
	}

	return c, nil
}
