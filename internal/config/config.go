package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is shared by the server and the agent. Each binary reads only the
// fields it needs.
type Config struct {
	Env           string
	Port          string
	AllowedOrigin string

	DatabaseURL string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	VersionCacheTTL time.Duration

	KafkaBrokers       []string
	KafkaTopicVersions string
	KafkaConsumerGroup string

	JaegerEndpoint string

	SyncTokenSecret string

	LocalDBPath   string
	RemoteURL     string
	RemoteTimeout time.Duration
	SyncInterval  time.Duration
	DeviceID      string
	MetricsAddr   string
}

// Load reads the environment, after loading an optional .env file from the
// working directory.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	hostname, _ := os.Hostname()

	cfg := Config{
		Env:                getEnv("ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		VersionCacheTTL:    getSeconds("VERSION_CACHE_TTL_SECONDS", 30),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicVersions: getEnv("KAFKA_TOPIC_VERSIONS", "tokostok-versions"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", ""),
		JaegerEndpoint:     os.Getenv("JAEGER_ENDPOINT"),
		SyncTokenSecret:    strings.TrimSpace(os.Getenv("SYNC_TOKEN_SECRET")),
		LocalDBPath:        os.Getenv("LOCAL_DB_PATH"),
		RemoteURL:          strings.TrimRight(os.Getenv("REMOTE_URL"), "/"),
		RemoteTimeout:      getSeconds("REMOTE_TIMEOUT_SECONDS", 10),
		SyncInterval:       getSeconds("SYNC_INTERVAL_SECONDS", 60),
		DeviceID:           getEnv("DEVICE_ID", hostname),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
	}
	if cfg.KafkaConsumerGroup == "" {
		cfg.KafkaConsumerGroup = "tokostok-agent-" + cfg.DeviceID
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Validate rejects settings that would fail at runtime rather than at boot.
func (c Config) Validate() error {
	var errs []error
	if c.SyncTokenSecret != "" && len(c.SyncTokenSecret) < 32 {
		errs = append(errs, errors.New("SYNC_TOKEN_SECRET must be at least 32 characters when set"))
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		errs = append(errs, fmt.Errorf("REMOTE_URL %q must be an http(s) URL", c.RemoteURL))
	}
	if c.SyncInterval < time.Second {
		errs = append(errs, errors.New("SYNC_INTERVAL_SECONDS must be at least 1"))
	}
	if c.RemoteTimeout < time.Second {
		errs = append(errs, errors.New("REMOTE_TIMEOUT_SECONDS must be at least 1"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopicVersions == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC_VERSIONS must be set when KAFKA_BROKERS is"))
	}
	return errors.Join(errs...)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getSeconds(key string, fallback int) time.Duration {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
