package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Remote donation service
	DonationBaseURL string
	RequestTimeout  time.Duration

	// Circuit breaker guarding the donation service
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64

	// Deep link that marks the end of the external payment page
	CallbackScheme string
	CallbackHost   string

	// Redirector: "pubnub" renders the page on the device, "browser" uses the OS browser
	Redirector string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string
	CallbackChannel    string
	DeviceChannel      string

	// Rate limiting for form submissions
	SubmitLimit  int64
	SubmitWindow time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Donation service
		DonationBaseURL: strings.TrimRight(getEnv("DONATION_API_URL", "http://127.0.0.1:8008"), "/"),
		RequestTimeout:  getEnvAsDuration("DONATION_API_TIMEOUT", "10s"),

		// Breaker
		BreakerMaxRequests:  uint32(getEnvAsInt("BREAKER_MAX_REQUESTS", 20)),
		BreakerInterval:     getEnvAsDuration("BREAKER_INTERVAL", "60s"),
		BreakerTimeout:      getEnvAsDuration("BREAKER_TIMEOUT", "30s"),
		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),

		// Callback
		CallbackScheme: getEnv("CALLBACK_SCHEME", "donationtestapp"),
		CallbackHost:   getEnv("CALLBACK_HOST", "close"),

		Redirector: getEnv("REDIRECTOR", "pubnub"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "donation-agent"),
		CallbackChannel:    getEnv("PUBNUB_CALLBACK_CHANNEL", "donation-callbacks"),
		DeviceChannel:      getEnv("PUBNUB_DEVICE_CHANNEL", "donation-device"),

		// Rate limiting
		SubmitLimit:  int64(getEnvAsInt("SUBMIT_LIMIT", 10)),
		SubmitWindow: getEnvAsDuration("SUBMIT_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// PubNubEnabled reports whether enough keys are set to talk to PubNub.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubSubscribeKey != "" && c.PubNubPublishKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
