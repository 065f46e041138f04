package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendLocal    = "local"
	BackendMemory   = "memory"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App        AppConfig
	Discord    DiscordConfig
	Tickets    TicketsConfig
	Sponsors   domain.TierTable
	Storage    StorageConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Local      LocalConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Dispatcher DispatcherConfig
}

// AppConfig controls process level behavior and the ops HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	HTTPEnabled           bool
	RequestTimeoutSeconds int
}

// DiscordConfig holds gateway credentials and platform handles.
type DiscordConfig struct {
	Token               string
	GuildID             string
	AdminRoleID         string
	ArchiveCategoryID   string
	TranscriptChannelID string
	EditsPerSecond      float64
}

// TicketsConfig maps ticket categories to channel groups.
type TicketsConfig struct {
	SponsorCategoryID   string
	ReportCategoryID    string
	SponsorRequiresTier bool
}

// StorageConfig selects the durable backends.
type StorageConfig struct {
	CounterBackend  string
	RegistryBackend string
	Timeout         time.Duration
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	EventChannel string
}

// LocalConfig configures the embedded SQLite database.
type LocalConfig struct {
	Path string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuthConfig defines ops API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorUsername      string
	OperatorPasswordHash  string
}

// DispatcherConfig tunes inbound event handling.
type DispatcherConfig struct {
	DedupWindow       time.Duration
	DedupBackend      string
	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
// It is the only place in the process that reads the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	defaultBackend := BackendLocal
	if dsn != "" {
		defaultBackend = BackendPostgres
	}
	registryBackend := strings.ToLower(getEnv("REGISTRY_BACKEND", defaultBackend))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			HTTPEnabled:           getEnvAsBool("HTTP_ENABLED", true),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Discord: DiscordConfig{
			Token:               os.Getenv("DISCORD_BOT_TOKEN"),
			GuildID:             os.Getenv("DISCORD_GUILD_ID"),
			AdminRoleID:         os.Getenv("ADMIN_ROLE_ID"),
			ArchiveCategoryID:   os.Getenv("ARCHIVE_CATEGORY_ID"),
			TranscriptChannelID: os.Getenv("TRANSCRIPT_CHANNEL_ID"),
			EditsPerSecond:      getEnvAsFloat("DISCORD_EDITS_PER_SECOND", 2),
		},
		Tickets: TicketsConfig{
			SponsorCategoryID:   os.Getenv("SPONSOR_TICKETS_CATEGORY_ID"),
			ReportCategoryID:    os.Getenv("REPORT_TICKETS_CATEGORY_ID"),
			SponsorRequiresTier: getEnvAsBool("SPONSOR_TICKETS_REQUIRE_TIER", false),
		},
		Sponsors: DefaultTiers(os.Getenv),
		Storage: StorageConfig{
			CounterBackend:  strings.ToLower(getEnv("COUNTER_BACKEND", registryBackend)),
			RegistryBackend: registryBackend,
			Timeout:         getEnvAsDuration("STORE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "ticketbot"),
			EventChannel: os.Getenv("REDIS_EVENT_CHANNEL"),
		},
		Local: LocalConfig{
			Path: getEnv("LOCAL_DB_PATH", "ticketbot.db"),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 28),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorUsername:      getEnv("OPERATOR_USERNAME", "admin"),
			OperatorPasswordHash:  os.Getenv("OPERATOR_PASSWORD_HASH"),
		},
		Dispatcher: DispatcherConfig{
			DedupWindow:       getEnvAsDuration("DEDUP_WINDOW", 2*time.Second),
			DedupBackend:      strings.ToLower(getEnv("DEDUP_BACKEND", BackendMemory)),
			RetryAttempts:     getEnvAsInt("RETRY_ATTEMPTS", 3),
			RetryInitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", 200*time.Millisecond),
			RetryMaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", 2*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultTiers builds the sponsor tier tables, reading role ids through lookup.
func DefaultTiers(lookup func(string) string) domain.TierTable {
	tier := func(key, name, emoji, env string) domain.SponsorTier {
		return domain.SponsorTier{Key: key, Name: name, Emoji: emoji, RoleID: lookup(env)}
	}
	return domain.TierTable{
		OneOff: map[string]domain.SponsorTier{
			"community": tier("community", "Community", "🤝", "COMMUNITY_SPONSOR_ROLE_ID"),
		},
		Recurring: map[string]domain.SponsorTier{
			"bronze":   tier("bronze", "Bronze", "🥉", "BRONZE_SPONSOR_ROLE_ID"),
			"silver":   tier("silver", "Silver", "🥈", "SILVER_SPONSOR_ROLE_ID"),
			"gold":     tier("gold", "Gold", "🥇", "GOLD_SPONSOR_ROLE_ID"),
			"platinum": tier("platinum", "Platinum", "🏆", "PLATINUM_SPONSOR_ROLE_ID"),
		},
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.RegistryBackend {
	case BackendPostgres, BackendLocal, BackendMemory:
	default:
		return fmt.Errorf("invalid REGISTRY_BACKEND %q", c.Storage.RegistryBackend)
	}
	switch c.Storage.CounterBackend {
	case BackendPostgres, BackendRedis, BackendLocal, BackendMemory:
	default:
		return fmt.Errorf("invalid COUNTER_BACKEND %q", c.Storage.CounterBackend)
	}
	if (c.Storage.RegistryBackend == BackendPostgres || c.Storage.CounterBackend == BackendPostgres) && c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
	}
	switch c.Dispatcher.DedupBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid DEDUP_BACKEND %q", c.Dispatcher.DedupBackend)
	}
	if c.Dispatcher.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive")
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Group returns the channel group new tickets of the category are created under.
func (t TicketsConfig) Group(category domain.Category) string {
	switch category {
	case domain.CategorySponsor:
		return t.SponsorCategoryID
	case domain.CategoryReport:
		return t.ReportCategoryID
	default:
		return ""
	}
}

// RequiredCapability returns what a requester must hold to open a ticket in category.
func (t TicketsConfig) RequiredCapability(category domain.Category) domain.Capability {
	if category == domain.CategorySponsor && t.SponsorRequiresTier {
		return domain.CapabilitySponsor
	}
	return domain.CapabilityNone
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
