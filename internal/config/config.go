package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For duration options

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment

	// M-Pesa gateway options
	MpesaBaseURL           string        // Gateway base URL
	MpesaShortcode         string        // Merchant business shortcode
	MpesaPasskey           string        // Shared passkey used to derive push passwords
	MpesaConsumerKey       string        // OAuth consumer key
	MpesaConsumerSecret    string        // OAuth consumer secret
	MpesaCallbackURL       string        // Publicly reachable webhook URL
	MpesaMinAmount         int64         // Minimum push amount in whole KES
	MpesaTokenSafetyMargin time.Duration // Refresh tokens this close to expiry
	MpesaHTTPTimeout       time.Duration // Timeout on every gateway call
	PollInterval           time.Duration // Delay between status-query attempts
	PollMaxAttempts        int           // Status-query attempt budget
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:    os.Getenv("APP_PORT"),          // Application port
		DBUser:     os.Getenv("DB_USER"),           // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:     os.Getenv("DB_HOST"),           // Database host
		DBPort:     os.Getenv("DB_PORT"),           // Database port
		DBName:     os.Getenv("DB_NAME"),           // Database name
		JWTSecret:  os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:  os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:    redisDB,                        // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true", // Is production environment

		MpesaBaseURL:           envOr("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),  // Gateway base URL
		MpesaShortcode:         envOr("MPESA_SHORTCODE", "174379"),                          // Sandbox shortcode default
		MpesaPasskey:           os.Getenv("MPESA_PASSKEY"),                                  // Shared passkey
		MpesaConsumerKey:       os.Getenv("MPESA_CONSUMER_KEY"),                             // OAuth consumer key
		MpesaConsumerSecret:    os.Getenv("MPESA_CONSUMER_SECRET"),                          // OAuth consumer secret
		MpesaCallbackURL:       os.Getenv("MPESA_CALLBACK_URL"),                             // Webhook URL
		MpesaMinAmount:         envInt64("MPESA_MIN_AMOUNT", 1),                             // Minimum push amount
		MpesaTokenSafetyMargin: envSeconds("MPESA_TOKEN_SAFETY_MARGIN_SECS", 30),            // Token expiry safety margin
		MpesaHTTPTimeout:       envSeconds("MPESA_HTTP_TIMEOUT_SECS", 30),                   // Gateway call timeout
		PollInterval:           envSeconds("MPESA_POLL_INTERVAL_SECS", 5),                   // Status-query interval
		PollMaxAttempts:        envIntDefault("MPESA_POLL_MAX_ATTEMPTS", 12),                // Status-query attempt budget
	}
}

// envOr returns the environment value or a fallback when unset
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntDefault parses an int environment value with a fallback
func envIntDefault(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

// envInt64 parses an int64 environment value with a fallback
func envInt64(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && v > 0 {
		return v
	}
	return fallback
}

// envSeconds parses a seconds count into a duration with a fallback
func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envIntDefault(key, fallback)) * time.Second
}
