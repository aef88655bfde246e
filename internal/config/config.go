package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName string
	LogLevel    string
	HTTPAddr    string
	ObsHTTPAddr string
	GRPCAddr    string
	InstanceID  string

	StorageDriver string
	DatabaseURL   string
	BoltPath      string

	RedisAddr string

	BrokerDriver string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	FailureTopic string

	Delivery Delivery

	DedupDriver      string
	DedupTTL         time.Duration
	RetryPublishRate float64

	AuthMode    string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RateLimitRequests int
	RateLimitWindow   string

	TracingEnabled bool
	JaegerURL      string
}

// Delivery holds the pipeline tuning knobs. They can come from the YAML file
// named by DELIVERY_CONFIG_FILE and are then overridden by the environment.
type Delivery struct {
	MaxRetryCount                int `yaml:"max_retry_count"`
	RetrySweepIntervalSeconds    int `yaml:"retry_sweep_interval_seconds"`
	DeliverySweepIntervalSeconds int `yaml:"delivery_sweep_interval_seconds"`
	SweepBatchSize               int `yaml:"sweep_batch_size"`
	ConsumerWorkers              int `yaml:"consumer_workers"`
}

func (d Delivery) RetrySweepInterval() time.Duration {
	return time.Duration(d.RetrySweepIntervalSeconds) * time.Second
}

func (d Delivery) DeliverySweepInterval() time.Duration {
	return time.Duration(d.DeliverySweepIntervalSeconds) * time.Second
}

type fileConfig struct {
	Delivery Delivery `yaml:"delivery"`
}

const (
	StorageSQL  = "postgres"
	StorageBolt = "bolt"

	BrokerKafka  = "kafka"
	BrokerMemory = "memory"

	DedupMemory = "memory"
	DedupRedis  = "redis"

	AuthJWT    = "jwt"
	AuthHeader = "header"
)

func DefaultDelivery() Delivery {
	return Delivery{
		MaxRetryCount:                3,
		RetrySweepIntervalSeconds:    30,
		DeliverySweepIntervalSeconds: 30,
		SweepBatchSize:               500,
		ConsumerWorkers:              4,
	}
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	delivery := DefaultDelivery()
	if path := os.Getenv("DELIVERY_CONFIG_FILE"); path != "" {
		if err := loadDeliveryFile(path, &delivery); err != nil {
			return nil, err
		}
	}
	delivery.MaxRetryCount = getEnvInt("MAX_RETRY_COUNT", delivery.MaxRetryCount)
	delivery.RetrySweepIntervalSeconds = getEnvInt("RETRY_SWEEP_INTERVAL_SECONDS", delivery.RetrySweepIntervalSeconds)
	delivery.DeliverySweepIntervalSeconds = getEnvInt("DELIVERY_SWEEP_INTERVAL_SECONDS", delivery.DeliverySweepIntervalSeconds)
	delivery.SweepBatchSize = getEnvInt("SWEEP_BATCH_SIZE", delivery.SweepBatchSize)
	delivery.ConsumerWorkers = getEnvInt("CONSUMER_WORKERS", delivery.ConsumerWorkers)

	topic := getEnv("KAFKA_TOPIC", "chat-messages")

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "messaging-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPAddr:    fixPort(getEnv("HTTP_PORT", ":8084")),
		ObsHTTPAddr: fixPort(getEnv("HTTP_ADDR", ":8094")),
		GRPCAddr:    fixPort(getEnv("GRPC_ADDR", ":50054")),
		InstanceID:  getEnv("INSTANCE_ID", getEnv("HOSTNAME", "")),

		StorageDriver: getEnv("STORAGE_DRIVER", StorageSQL),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		BoltPath:      getEnv("BOLT_PATH", "messaging.db"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		BrokerDriver: getEnv("BROKER_DRIVER", BrokerKafka),
		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:   topic,
		KafkaGroup:   getEnv("KAFKA_GROUP", "messaging-delivery"),
		FailureTopic: getEnv("FAILURE_TOPIC", topic+".failed"),

		Delivery: delivery,

		DedupDriver:      getEnv("DEDUP_DRIVER", DedupMemory),
		DedupTTL:         getEnvDuration("DEDUP_TTL", 30*time.Second),
		RetryPublishRate: getEnvFloat("RETRY_PUBLISH_RATE", 0),

		AuthMode:    getEnv("AUTH_MODE", AuthJWT),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),
		JWTAudience: getEnv("JWT_AUDIENCE", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnv("RATE_LIMIT_WINDOW", "1m"),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		JaegerURL:      getEnv("JAEGER_URL", "http://localhost:14268/api/traces"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	d := c.Delivery
	switch {
	case d.MaxRetryCount < 1:
		return fmt.Errorf("config: max retry count must be positive, got %d", d.MaxRetryCount)
	case d.RetrySweepIntervalSeconds < 1:
		return fmt.Errorf("config: retry sweep interval must be positive, got %d", d.RetrySweepIntervalSeconds)
	case d.DeliverySweepIntervalSeconds < 1:
		return fmt.Errorf("config: delivery sweep interval must be positive, got %d", d.DeliverySweepIntervalSeconds)
	case d.SweepBatchSize < 1:
		return fmt.Errorf("config: sweep batch size must be positive, got %d", d.SweepBatchSize)
	case d.ConsumerWorkers < 1:
		return fmt.Errorf("config: consumer workers must be positive, got %d", d.ConsumerWorkers)
	}

	if c.StorageDriver != StorageSQL && c.StorageDriver != StorageBolt {
		return fmt.Errorf("config: unknown storage driver %q", c.StorageDriver)
	}
	if c.StorageDriver == StorageSQL && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for the %s driver", StorageSQL)
	}
	if c.BrokerDriver != BrokerKafka && c.BrokerDriver != BrokerMemory {
		return fmt.Errorf("config: unknown broker driver %q", c.BrokerDriver)
	}
	if c.DedupDriver != DedupMemory && c.DedupDriver != DedupRedis {
		return fmt.Errorf("config: unknown dedup driver %q", c.DedupDriver)
	}
	if c.AuthMode != AuthJWT && c.AuthMode != AuthHeader {
		return fmt.Errorf("config: unknown auth mode %q", c.AuthMode)
	}
	if c.RetryPublishRate < 0 {
		return fmt.Errorf("config: retry publish rate must not be negative")
	}
	return nil
}

func loadDeliveryFile(path string, d *Delivery) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	fc := fileConfig{Delivery: *d}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	*d = fc.Delivery
	return nil
}

func fixPort(port string) string {
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
