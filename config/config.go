package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

type Config struct {
	Environment string
	Port        string
	DatabaseURL string
	RedisURL    string // empty disables Redis
	JWTSecret   string
	AuthMode    string // jwt or header
	StoreDriver string // mongo or memory
	SeedDemo    bool

	CORSOrigins []string

	// Dispatch
	DispatchRadiusKm    float64
	AlertTTL            time.Duration
	ExpirySweepEnabled  bool
	ExpirySweepInterval time.Duration

	// Firebase Config
	FirebaseCredentialsPath string

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Rate limits
	RateLimitRequests        int
	RateLimitCreatePerMinute int
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/rescuedispatch"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   getEnv("JWT_SECRET", "change-me-in-production"),
		AuthMode:    strings.ToLower(getEnv("AUTH_MODE", "jwt")),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMongo)),
		SeedDemo:    getEnvAsBool("SEED_DEMO_DATA", false),

		CORSOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DispatchRadiusKm:    getEnvAsFloat("DISPATCH_RADIUS_KM", 5),
		AlertTTL:            getEnvAsDuration("ALERT_TTL", time.Hour),
		ExpirySweepEnabled:  getEnvAsBool("EXPIRY_SWEEP_ENABLED", true),
		ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),

		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		RateLimitRequests:        getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitCreatePerMinute: getEnvAsInt("RATE_LIMIT_CREATE_PER_MINUTE", 3),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// InitRedis returns nil when REDIS_URL is unset.
func InitRedis(cfg *Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
