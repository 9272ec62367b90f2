package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fliptowin/internal/cache"
	"fliptowin/internal/database"
	"fliptowin/internal/events"
	"fliptowin/internal/game"
	"fliptowin/internal/store"
)

// Used only when GAME_ALLOW_INSECURE_SECRET=true outside production.
const insecureDevSecret = "fliptowin-insecure-development-secret"

const EnvProduction = "production"

type GameConfig struct {
	RoundDurationMs int64           `yaml:"round_duration_ms"`
	BettingLockMs   int64           `yaml:"betting_lock_ms"`
	MaxBetAmount    decimal.Decimal `yaml:"-"`
	MaxBetRaw       string          `yaml:"max_bet_amount"`
	AnnounceRounds  bool            `yaml:"announce_rounds"`

	Secret              string `yaml:"-"`
	AllowInsecureSecret bool   `yaml:"allow_insecure_secret"`
	InsecureSecret      bool   `yaml:"-"`
}

type RedisConfig struct {
	cache.Config
	MaxRetries int
}

type KafkaConfig struct {
	Brokers         []string
	TopicBetSettled string
}

type HTTPConfig struct {
	Port            string
	CORSOrigins     string
	RateLimitMax    int
	RateLimitWindow time.Duration
	AdminAPIKey     string
}

type Config struct {
	Env         string
	ServiceName string

	Game  GameConfig `yaml:"game"`
	HTTP  HTTPConfig
	Store string

	Database database.Config
	Redis    RedisConfig
	Kafka    KafkaConfig

	MigrationsPath string
	RunMigrations  bool
}

func defaults() *Config {
	return &Config{
		Env:         "local",
		ServiceName: "coinflip",
		Game: GameConfig{
			RoundDurationMs: game.DEFAULT_ROUND_DURATION_MS,
			BettingLockMs:   game.DEFAULT_BETTING_LOCK_MS,
			MaxBetAmount:    decimal.NewFromInt(game.DEFAULT_MAX_BET_AMOUNT),
			AnnounceRounds:  true,
		},
		HTTP: HTTPConfig{
			Port:            "8080",
			CORSOrigins:     "*",
			RateLimitMax:    100,
			RateLimitWindow: time.Minute,
		},
		Store: store.BackendPostgres,
		Database: database.Config{
			Host:            "localhost",
			Port:            "5432",
			Database:        "coinflip",
			Username:        "postgres",
			Password:        "postgres",
			Schema:          "public",
			ConnectAttempts: 5,
			RetryDelay:      2 * time.Second,
		},
		Redis: RedisConfig{
			Config:     cache.Config{Addr: "localhost:6379"},
			MaxRetries: store.DEFAULT_REDIS_MAX_RETRIES,
		},
		Kafka: KafkaConfig{
			TopicBetSettled: events.TopicBetSettled,
		},
		MigrationsPath: "./migrations",
	}
}

// Load reads CONFIG_FILE (optional), then the environment, then resolves the
// game secret and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecret(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if c.Game.MaxBetRaw != "" {
		v, err := decimal.NewFromString(c.Game.MaxBetRaw)
		if err != nil {
			return fmt.Errorf("config file max_bet_amount %q: %w", c.Game.MaxBetRaw, err)
		}
		c.Game.MaxBetAmount = v
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Env = getEnv("APP_ENV", c.Env)
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)

	c.Game.RoundDurationMs = getEnvAsInt64(&errs, "ROUND_DURATION_MS", c.Game.RoundDurationMs)
	c.Game.BettingLockMs = getEnvAsInt64(&errs, "BETTING_LOCK_MS", c.Game.BettingLockMs)
	c.Game.AnnounceRounds = getEnvAsBool(&errs, "ANNOUNCE_ROUNDS", c.Game.AnnounceRounds)
	c.Game.AllowInsecureSecret = getEnvAsBool(&errs, "GAME_ALLOW_INSECURE_SECRET", c.Game.AllowInsecureSecret)
	c.Game.Secret = os.Getenv("GAME_SECRET")
	if v := os.Getenv("MAX_BET_AMOUNT"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_BET_AMOUNT %q: %w", v, err))
		} else {
			c.Game.MaxBetAmount = amount
		}
	}

	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.HTTP.CORSOrigins = getEnv("CORS_ALLOW_ORIGINS", c.HTTP.CORSOrigins)
	c.HTTP.RateLimitMax = getEnvAsInt(&errs, "RATE_LIMIT_MAX", c.HTTP.RateLimitMax)
	c.HTTP.RateLimitWindow = getEnvAsDuration(&errs, "RATE_LIMIT_WINDOW", c.HTTP.RateLimitWindow)
	c.HTTP.AdminAPIKey = getEnv("ADMIN_API_KEY", c.HTTP.AdminAPIKey)

	c.Store = strings.ToLower(getEnv("STORE_BACKEND", c.Store))

	c.Database.Host = getEnv("BLUEPRINT_DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("BLUEPRINT_DB_PORT", c.Database.Port)
	c.Database.Database = getEnv("BLUEPRINT_DB_DATABASE", c.Database.Database)
	c.Database.Username = getEnv("BLUEPRINT_DB_USERNAME", c.Database.Username)
	c.Database.Password = getEnv("BLUEPRINT_DB_PASSWORD", c.Database.Password)
	c.Database.Schema = getEnv("BLUEPRINT_DB_SCHEMA", c.Database.Schema)
	c.Database.SSLMode = getEnv("BLUEPRINT_DB_SSLMODE", c.Database.SSLMode)
	c.Database.ConnectAttempts = getEnvAsInt(&errs, "DB_CONNECT_ATTEMPTS", c.Database.ConnectAttempts)
	c.Database.RetryDelay = getEnvAsDuration(&errs, "DB_CONNECT_RETRY_DELAY", c.Database.RetryDelay)

	c.Redis.Addr = getEnv("REDIS_URL", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt(&errs, "REDIS_DB", c.Redis.DB)
	c.Redis.MaxRetries = getEnvAsInt(&errs, "REDIS_SETTLE_RETRIES", c.Redis.MaxRetries)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.TopicBetSettled = getEnv("KAFKA_TOPIC_BET_SETTLED", c.Kafka.TopicBetSettled)

	c.MigrationsPath = getEnv("MIGRATIONS_PATH", c.MigrationsPath)
	c.RunMigrations = getEnvAsBool(&errs, "RUN_MIGRATIONS", c.RunMigrations)

	return errors.Join(errs...)
}

// resolveSecret fails closed: without GAME_SECRET the service only starts
// when insecure mode is explicitly allowed and the env is not production.
func (c *Config) resolveSecret() error {
	if c.Game.Secret != "" {
		c.Game.InsecureSecret = false
		return nil
	}
	if c.Game.AllowInsecureSecret && c.Env != EnvProduction {
		c.Game.Secret = insecureDevSecret
		c.Game.InsecureSecret = true
		return nil
	}
	if c.Game.AllowInsecureSecret {
		return fmt.Errorf("%w: insecure secret is not allowed in %s", game.ErrMissingSecret, c.Env)
	}
	return fmt.Errorf("%w: set GAME_SECRET", game.ErrMissingSecret)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Game.RoundDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("round duration must be positive, got %d", c.Game.RoundDurationMs))
	}
	if c.Game.BettingLockMs < 0 || c.Game.BettingLockMs >= c.Game.RoundDurationMs {
		errs = append(errs, fmt.Errorf("betting lock must be in [0, %d), got %d", c.Game.RoundDurationMs, c.Game.BettingLockMs))
	}
	if !c.Game.MaxBetAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("max bet amount must be positive, got %s", c.Game.MaxBetAmount))
	}
	if c.Game.Secret == "" {
		errs = append(errs, game.ErrMissingSecret)
	}

	switch c.Store {
	case store.BackendMemory, store.BackendPostgres, store.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store))
	}
	if c.Store == store.BackendMemory && c.Env == EnvProduction {
		errs = append(errs, errors.New("memory store is not allowed in production"))
	}
	if c.HTTP.RateLimitMax <= 0 {
		errs = append(errs, fmt.Errorf("rate limit must be positive, got %d", c.HTTP.RateLimitMax))
	}

	return errors.Join(errs...)
}

func (c *Config) NewOracle() (*game.Oracle, error) {
	if c.Game.InsecureSecret {
		return game.NewInsecureOracle([]byte(c.Game.Secret))
	}
	return game.NewOracle([]byte(c.Game.Secret))
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(errs *[]error, key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s %q: %w", key, val, err))
		return defaultVal
	}
	return n
}

func getEnvAsInt64(errs *[]error, key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s %q: %w", key, val, err))
		return defaultVal
	}
	return n
}

func getEnvAsBool(errs *[]error, key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s %q: %w", key, val, err))
		return defaultVal
	}
	return b
}

func getEnvAsDuration(errs *[]error, key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s %q: %w", key, val, err))
		return defaultVal
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
