// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
}

// DatabaseConfig holds document-store connection settings
type DatabaseConfig struct {
	URI  string
	Name string
}

// MessagingConfig holds messaging policy knobs
type MessagingConfig struct {
	// DeleteForEveryoneWindow bounds how long after sending a direct
	// message its sender may delete it for everyone.
	DeleteForEveryoneWindow time.Duration

	// GroupMemberCap is the hard cap on group membership size.
	GroupMemberCap int

	// BackupRetention is how long non-restorable backup records are kept.
	BackupRetention time.Duration

	// TypingTTL is how long a typing indicator stays live without refresh.
	TypingTTL time.Duration
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Messaging      *MessagingConfig
	JWTSecret      string
	AllowedOrigins []string
	Debug          bool
}

// DefaultServerConfig provides default server settings
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
	}
}

// DefaultMessagingConfig provides default messaging policy settings
func DefaultMessagingConfig() *MessagingConfig {
	return &MessagingConfig{
		DeleteForEveryoneWindow: time.Hour,
		GroupMemberCap:          256,
		BackupRetention:         90 * 24 * time.Hour,
		TypingTTL:               6 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; env vars may come from the environment.
	_ = godotenv.Load()

	serverConfig := DefaultServerConfig()
	if port, ok := envInt("PORT"); ok {
		serverConfig.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	dbConfig := &DatabaseConfig{
		URI:  envOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		Name: envOrDefault("DB_NAME", "campuslink"),
	}

	msgConfig := DefaultMessagingConfig()
	if d, ok := envDuration("DELETE_FOR_EVERYONE_WINDOW"); ok {
		msgConfig.DeleteForEveryoneWindow = d
	}
	if n, ok := envInt("GROUP_MEMBER_CAP"); ok {
		msgConfig.GroupMemberCap = n
	}
	if days, ok := envInt("BACKUP_RETENTION_DAYS"); ok {
		msgConfig.BackupRetention = time.Duration(days) * 24 * time.Hour
	}
	if d, ok := envDuration("TYPING_TTL"); ok {
		msgConfig.TypingTTL = d
	}

	config := &Config{
		Server:         serverConfig,
		Database:       dbConfig,
		Messaging:      msgConfig,
		JWTSecret:      envOrDefault("JWT_SECRET", "campuslink-dev-secret"),
		AllowedOrigins: []string{"*"},
		Debug:          os.Getenv("DEBUG") == "true",
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	return config, nil
}

// Helper to get an environment variable with a default fallback
func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string) (int, bool) {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

func envDuration(key string) (time.Duration, bool) {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d, true
		}
	}
	return 0, false
}
