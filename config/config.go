package config

import (
	"os"
	"strconv"
	"time"

	"training-system/internal/gateway/corepay"
	"training-system/internal/hostbridge"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL string

	// Remote booking/payment API
	CorePay corepay.Config

	// Host payment surface bridge
	HostBridge hostbridge.Config

	// Timeout configuration
	PaymentSessionTTL time.Duration
	AttemptTTL        time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// CorePay
		CorePay: corepay.Config{
			ClientConfig: corepay.ClientConfig{
				BaseURL:   getEnv("COREPAY_BASE_URL", "http://localhost:8080"),
				PartnerID: getEnv("COREPAY_PARTNER_ID", ""),
				ClientID:  getEnv("COREPAY_CLIENT_ID", ""),
				ClientKey: getEnv("COREPAY_CLIENT_KEY", ""),
				HMACKey:   getEnv("COREPAY_HMAC_KEY", ""),
			},
			Provider: getEnv("COREPAY_PROVIDER", "corepay"),
		},

		// Host bridge
		HostBridge: hostbridge.Config{
			PublishKey:    getEnv("PUBNUB_PUBLISH_KEY", ""),
			SubscribeKey:  getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
			SecretKey:     getEnv("PUBNUB_SECRET_KEY", ""),
			UUID:          getEnv("PUBNUB_UUID", "training-system"),
			ActionChannel: getEnv("PUBNUB_ACTION_CHANNEL", "payment-actions"),
			ResultChannel: getEnv("PUBNUB_RESULT_CHANNEL", "payment-action-results"),
		},

		// Timeouts
		PaymentSessionTTL: getEnvAsDuration("PAYMENT_SESSION_TTL", "30m"),
		AttemptTTL:        getEnvAsDuration("ATTEMPT_TTL", "72h"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, fall back to the default value.
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
