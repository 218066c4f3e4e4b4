package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Gateway is the websocket endpoint of the WhatsApp bridge process.
	GatewayURL            string
	GatewayReconnectDelay time.Duration
	GatewayWriteTimeout   time.Duration

	// Directory holding the response template JSON sets and the avoid list.
	ResponsesDir string

	// MaxConversationTime bounds one conversational session; a reply arriving
	// later than this after the session started resets the lineage.
	MaxConversationTime time.Duration

	// HandlerTimeout bounds a single inbound-message handling pass, lock included.
	HandlerTimeout time.Duration

	// SenderLockTTL is the lease on the per-sender busy flag. It must exceed
	// HandlerTimeout so the lock outlives any handler it guards.
	SenderLockTTL time.Duration

	KeepAliveInterval      time.Duration
	PresenceInterval       time.Duration
	KeepAliveProbeAddress  string
	JWTSecret              string
	JWTExpiry              time.Duration
	CORSAllowedOrigins     string
	DispatchUserFallback   string
	BotEnabledByDefault    bool
	ConversationModeOnBoot bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisAddr:              getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		GatewayURL:             getEnv("GATEWAY_URL", "ws://localhost:3001/ws"),
		GatewayReconnectDelay:  getEnvAsDuration("GATEWAY_RECONNECT_DELAY", 5*time.Second),
		GatewayWriteTimeout:    getEnvAsDuration("GATEWAY_WRITE_TIMEOUT", 10*time.Second),
		ResponsesDir:           getEnv("RESPONSES_DIR", "configs/responses"),
		MaxConversationTime:    getEnvAsDuration("MAX_CONVERSATION_TIME", 30*time.Minute),
		HandlerTimeout:         getEnvAsDuration("HANDLER_TIMEOUT", 30*time.Second),
		SenderLockTTL:          getEnvAsDuration("SENDER_LOCK_TTL", 45*time.Second),
		KeepAliveInterval:      getEnvAsDuration("KEEPALIVE_INTERVAL", 30*time.Second),
		PresenceInterval:       getEnvAsDuration("PRESENCE_INTERVAL", 5*time.Minute),
		KeepAliveProbeAddress:  getEnv("KEEPALIVE_PROBE_ADDRESS", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTExpiry:              getEnvAsDuration("JWT_EXPIRY", 8*time.Hour),
		CORSAllowedOrigins:     getEnv("CORS_ALLOWED_ORIGINS", "*"),
		DispatchUserFallback:   getEnv("DISPATCH_USER_FALLBACK", "system"),
		BotEnabledByDefault:    getEnvAsBool("BOT_ENABLED", true),
		ConversationModeOnBoot: getEnvAsBool("CONVERSATION_MODE_ON_BOOT", false),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
