package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/tair/product-console/internal/catalog/client"
	"github.com/tair/product-console/internal/catalog/controller"
	"github.com/tair/product-console/internal/catalog/notify"
)

// Push transports
const (
	TransportKafka = "kafka"
	TransportRedis = "redis"
	TransportNone  = "none"
)

// BackendConfig holds settings for the catalog backend
type BackendConfig struct {
	URL             string        `validate:"required,url"`
	Timeout         time.Duration `validate:"gt=0"`
	GenerateTimeout time.Duration `validate:"gt=0"`
	UploadTimeout   time.Duration `validate:"gt=0"`
	JWTSecret       string
	JWTSubject      string
	GenerateRPS     float64 `validate:"gte=0"`
	GenerateBurst   int     `validate:"gte=0"`
	MaxFailures     int     `validate:"gt=0"`
	BreakerTimeout  time.Duration `validate:"gt=0"`
}

// PushConfig selects and configures the notification channel
type PushConfig struct {
	Transport string   `validate:"oneof=kafka redis none"`
	Brokers   []string `validate:"required_if=Transport kafka"`
	GroupID   string   `validate:"required_if=Transport kafka"`
	Topic     string   `validate:"required_if=Transport kafka"`
	Channel   string   `validate:"required_if=Transport redis"`
}

// RedisConfig holds the redis connection used for push, rate limiting and caching
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// TracingConfig controls the Jaeger exporter
type TracingConfig struct {
	Endpoint    string
	SampleRatio float64 `validate:"gte=0,lte=1"`
}

// RateLimitConfig bounds console actions per session
type RateLimitConfig struct {
	Requests int           `validate:"gte=0"`
	Window   time.Duration `validate:"gt=0"`
}

// ConsoleConfig holds the main console configuration
type ConsoleConfig struct {
	ServiceName        string `validate:"required"`
	Environment        string `validate:"required"`
	LogLevel           string `validate:"oneof=debug info warn error"`
	Port               string `validate:"required,numeric"`
	CORSAllowedOrigins string
	MaxImageBytes      int64         `validate:"gt=0"`
	SessionTTL         time.Duration `validate:"gt=0"`
	FarmCacheTTL       time.Duration `validate:"gte=0"`

	Backend   BackendConfig
	Push      PushConfig
	Redis     RedisConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
}

// LoadConfig loads the console configuration from the environment. A .env
// file in the working directory is read first when present.
func LoadConfig() (*ConsoleConfig, error) {
	_ = godotenv.Load()

	cfg := &ConsoleConfig{
		ServiceName:        getEnv("OTEL_SERVICE_NAME", "product-console"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Port:               getEnv("PORT", "8090"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		MaxImageBytes:      getEnvInt64("MAX_IMAGE_BYTES", controller.DefaultMaxImageBytes),
		SessionTTL:         getEnvDuration("SESSION_TTL", 2*time.Hour),
		FarmCacheTTL:       getEnvDuration("FARM_CACHE_TTL", time.Minute),
		Backend: BackendConfig{
			URL:             getEnv("BACKEND_URL", "http://localhost:5000"),
			Timeout:         getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
			GenerateTimeout: getEnvDuration("BACKEND_GENERATE_TIMEOUT", 120*time.Second),
			UploadTimeout:   getEnvDuration("BACKEND_UPLOAD_TIMEOUT", 30*time.Second),
			JWTSecret:       getEnv("BACKEND_JWT_SECRET", ""),
			JWTSubject:      getEnv("BACKEND_JWT_SUBJECT", "product-console"),
			GenerateRPS:     getEnvFloat("BACKEND_GENERATE_RPS", 0),
			GenerateBurst:   getEnvInt("BACKEND_GENERATE_BURST", 1),
			MaxFailures:     getEnvInt("BACKEND_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:  getEnvDuration("BACKEND_BREAKER_TIMEOUT", 30*time.Second),
		},
		Push: PushConfig{
			Transport: strings.ToLower(getEnv("PUSH_TRANSPORT", TransportNone)),
			Brokers:   getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:   getEnv("KAFKA_GROUP_ID", "product-console"),
			Topic:     getEnv("KAFKA_TOPIC", notify.TopicProductEvents),
			Channel:   getEnv("REDIS_CHANNEL", notify.ChannelProductEvents),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("JAEGER_ENDPOINT", ""),
			SampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and the cross-field rules
func (c *ConsoleConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Push.Transport == TransportRedis && c.Redis.Addr == "" {
		return fmt.Errorf("invalid configuration: REDIS_ADDR is required for the redis push transport")
	}
	return nil
}

// IsDevelopment reports whether console log output should be used
func (c *ConsoleConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// ClientConfig maps the backend settings onto the catalog client
func (c *ConsoleConfig) ClientConfig() client.Config {
	return client.Config{
		BaseURL:         c.Backend.URL,
		Timeout:         c.Backend.Timeout,
		GenerateTimeout: c.Backend.GenerateTimeout,
		UploadTimeout:   c.Backend.UploadTimeout,
		JWTSecret:       c.Backend.JWTSecret,
		JWTSubject:      c.Backend.JWTSubject,
		GenerateRPS:     c.Backend.GenerateRPS,
		GenerateBurst:   c.Backend.GenerateBurst,
		MaxFailures:     c.Backend.MaxFailures,
		BreakerTimeout:  c.Backend.BreakerTimeout,
	}
}

// KafkaConfig maps the push settings onto the kafka listener
func (c *ConsoleConfig) KafkaConfig() notify.KafkaConfig {
	return notify.KafkaConfig{
		Brokers: c.Push.Brokers,
		GroupID: c.Push.GroupID,
		Topics:  []string{c.Push.Topic},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") and plain seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
