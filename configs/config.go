package configs

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v7"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Telegram TelegramConfig
	Delta    DeltaConfig
	Monitor  MonitorConfig
	Sizing   SizingConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    string `env:"PORT" envDefault:"8080"`
	OpsPort string `env:"OPS_PORT" envDefault:"8081"`
	Env     string `env:"GO_ENV" envDefault:"development"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// RedisConfig holds Redis configuration. An empty address disables the shared price cache.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// KafkaConfig holds the copy-result publisher settings. No brokers means results are only logged.
type KafkaConfig struct {
	Brokers         []string `env:"KAFKA_BROKERS" envSeparator:","`
	CopyEventsTopic string   `env:"KAFKA_TOPIC_COPY_EVENTS" envDefault:"copy-trade-results"`
}

// DeltaConfig holds exchange endpoint settings
type DeltaConfig struct {
	BaseURL       string        `env:"DELTA_BASE_URL" envDefault:"https://api.india.delta.exchange"`
	WebSocketURL  string        `env:"DELTA_WS_URL" envDefault:"wss://socket.india.delta.exchange"`
	Timeout       time.Duration `env:"DELTA_TIMEOUT" envDefault:"15s"`
	MaxRetries    int           `env:"DELTA_MAX_RETRIES" envDefault:"3"`
	StreamEnabled bool          `env:"STREAM_ENABLED" envDefault:"false"`
}

// MonitorConfig holds the per-account polling loop settings
type MonitorConfig struct {
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollJitter    time.Duration `env:"POLL_JITTER" envDefault:"500ms"`
	MaxBackoff    time.Duration `env:"MAX_BACKOFF" envDefault:"2m"`
	TickTimeout   time.Duration `env:"TICK_TIMEOUT" envDefault:"30s"`
	SyncSchedule  string        `env:"SYNC_SCHEDULE" envDefault:"@every 30s"`
	TradeSource   string        `env:"TRADE_SOURCE" envDefault:"fills"`
	FillsPageSize int           `env:"FILLS_PAGE_SIZE" envDefault:"50"`
}

// SizingConfig holds order sizing settings
type SizingConfig struct {
	SizeIncrement float64       `env:"SIZE_INCREMENT" envDefault:"0.001"`
	PriceCacheTTL time.Duration `env:"PRICE_CACHE_TTL" envDefault:"2s"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// TelegramConfig holds the chat notifier settings. An empty token disables it.
type TelegramConfig struct {
	BotToken  string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID    string `env:"TELEGRAM_CHAT_ID"`
	Timezone  string `env:"TZ" envDefault:"UTC"`
	NotifyAll bool   `env:"TELEGRAM_NOTIFY_ALL" envDefault:"false"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	if c.Delta.Timeout < 10*time.Second || c.Delta.Timeout > 30*time.Second {
		return fmt.Errorf("DELTA_TIMEOUT must be between 10s and 30s, got %s", c.Delta.Timeout)
	}
	if c.Delta.MaxRetries < 0 {
		return fmt.Errorf("DELTA_MAX_RETRIES must not be negative")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.Monitor.TradeSource != "fills" && c.Monitor.TradeSource != "positions" {
		return fmt.Errorf("TRADE_SOURCE must be fills or positions, got %q", c.Monitor.TradeSource)
	}
	if c.Sizing.SizeIncrement <= 0 {
		return fmt.Errorf("SIZE_INCREMENT must be positive")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}
