package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	CoinGeckoBaseURL string        `env:"COINGECKO_BASE_URL,default=https://api.coingecko.com/api/v3"`
	CoinGeckoAPIKey  string        `env:"COINGECKO_API_KEY"`
	CoinGeckoTimeout time.Duration `env:"COINGECKO_TIMEOUT,default=10s"`
	RefreshInterval  time.Duration `env:"REFRESH_INTERVAL,default=5s"`
	Sparkline        bool          `env:"SPARKLINE,default=true"`
	PerPage          int           `env:"PER_PAGE,default=5"`
	CommandBuffer    int           `env:"COMMAND_BUFFER,default=64"`

	StoreDriver  string        `env:"STORE_DRIVER,default=sqlite"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT,default=2s"`
	SQLitePath   string        `env:"SQLITE_PATH,default=coinwatch.db"`

	DBHost            string        `env:"DB_HOST,default=localhost"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,default=coinwatch"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME,default=coinwatch"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=4"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	RedisPrefix   string `env:"REDIS_PREFIX,default=coinwatch:"`

	ProbeAddr     string        `env:"PROBE_ADDR,default=api.coingecko.com:443"`
	ProbeInterval time.Duration `env:"PROBE_INTERVAL,default=5s"`
	ProbeTimeout  time.Duration `env:"PROBE_TIMEOUT,default=3s"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID      int64  `env:"TELEGRAM_CHAT_ID,default=0"`
	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"REFRESH_INTERVAL", c.RefreshInterval},
		{"PROBE_INTERVAL", c.ProbeInterval},
		{"PROBE_TIMEOUT", c.ProbeTimeout},
		{"COINGECKO_TIMEOUT", c.CoinGeckoTimeout},
		{"STORE_TIMEOUT", c.StoreTimeout},
	}
	for _, field := range positive {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", field.name, field.value)
		}
	}
	return nil
}
