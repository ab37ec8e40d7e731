package config

import (
	"os"
	"time"

	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Collab    CollabConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	CORSOrigin   string
	DevTokens    bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// CollabConfig tunes the persistent-connection side of the service.
type CollabConfig struct {
	SendBuffer       int
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
	MessageRPS       float64
	MessageBurst     int
	ReverifyInterval time.Duration
	RelayEnabled     bool
	RelayChannel     string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("DEV_TOKENS", false)
	v.SetDefault("MONGODB_DATABASE", "diagramsync")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 43200) // minutes (30 days)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("COLLAB_SEND_BUFFER", 64)
	v.SetDefault("COLLAB_WRITE_TIMEOUT_SECONDS", 10)
	v.SetDefault("COLLAB_IDLE_TIMEOUT_SECONDS", 60)
	v.SetDefault("COLLAB_HANDSHAKE_TIMEOUT_SECONDS", 10)
	v.SetDefault("COLLAB_MAX_MESSAGE_BYTES", 1<<20)
	v.SetDefault("COLLAB_MESSAGE_RPS", 20.0)
	v.SetDefault("COLLAB_MESSAGE_BURST", 40)
	v.SetDefault("COLLAB_REVERIFY_SECONDS", 0)
	v.SetDefault("COLLAB_RELAY_ENABLED", false)
	v.SetDefault("COLLAB_RELAY_CHANNEL", "diagramsync:updates")
	v.SetDefault("MINIO_BUCKET", "diagramsync")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			CORSOrigin:   v.GetString("FRONTEND_URL"),
			DevTokens:    v.GetBool("DEV_TOKENS"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:      v.GetString("KEYCLOAK_URL"),
			Realm:    v.GetString("KEYCLOAK_REALM"),
			ClientID: v.GetString("KEYCLOAK_CLIENT_ID"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Collab: CollabConfig{
			SendBuffer:       v.GetInt("COLLAB_SEND_BUFFER"),
			WriteTimeout:     time.Duration(v.GetInt("COLLAB_WRITE_TIMEOUT_SECONDS")) * time.Second,
			IdleTimeout:      time.Duration(v.GetInt("COLLAB_IDLE_TIMEOUT_SECONDS")) * time.Second,
			HandshakeTimeout: time.Duration(v.GetInt("COLLAB_HANDSHAKE_TIMEOUT_SECONDS")) * time.Second,
			MaxMessageBytes:  v.GetInt64("COLLAB_MAX_MESSAGE_BYTES"),
			MessageRPS:       v.GetFloat64("COLLAB_MESSAGE_RPS"),
			MessageBurst:     v.GetInt("COLLAB_MESSAGE_BURST"),
			ReverifyInterval: time.Duration(v.GetInt("COLLAB_REVERIFY_SECONDS")) * time.Second,
			RelayEnabled:     v.GetBool("COLLAB_RELAY_ENABLED"),
			RelayChannel:     v.GetString("COLLAB_RELAY_CHANNEL"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; HS256 tokens cannot be verified")
	}
	if cfg.MongoDB.URI == "" {
		logger.Warn("MONGODB_URI is not set; documents are kept in memory only")
	}

	return cfg, nil
}
