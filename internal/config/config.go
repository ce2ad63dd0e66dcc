package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Helpdesk     HelpdeskConfig
	Graph        GraphConfig
	Sweep        SweepConfig
	OpenAI       OpenAIConfig
	Kafka        KafkaConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
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
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	FeedbackTokenSecret   string
	FeedbackTokenTTLHours int
	BcryptCost            int
}

// HelpdeskConfig holds ticket routing and reporting knobs.
type HelpdeskConfig struct {
	SLAThresholdHours     int
	LowRatingThreshold    int
	FeedbackLinkBaseURL   string
	WebhookTimeoutSeconds int
	// Timezone names the location whose calendar decides leave and holidays.
	Timezone string
}

// GraphConfig points at the Microsoft identity platform and Graph API.
type GraphConfig struct {
	LoginBaseURL        string
	APIBaseURL          string
	NotificationURL     string
	SubscriptionTTLMins int
	RenewIntervalMins   int
}

// SweepConfig controls the auto-reassignment job.
type SweepConfig struct {
	IntervalMinutes     int
	TicketTimeoutSecond int
	LockTTLSeconds      int
	BatchSize           int
}

// OpenAIConfig configures the sentiment collaborator.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// KafkaConfig configures optional event forwarding.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NotificationConfig holds outbound mail settings.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			FeedbackTokenSecret:   getEnv("AUTH_FEEDBACK_TOKEN_SECRET", "dev-feedback-secret"),
			FeedbackTokenTTLHours: getEnvAsInt("AUTH_FEEDBACK_TOKEN_TTL_HOURS", 14*24),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Helpdesk: HelpdeskConfig{
			SLAThresholdHours:     getEnvAsInt("HELPDESK_SLA_THRESHOLD_HOURS", 24),
			LowRatingThreshold:    getEnvAsInt("HELPDESK_LOW_RATING_THRESHOLD", 2),
			FeedbackLinkBaseURL:   getEnv("HELPDESK_FEEDBACK_LINK_BASE_URL", "http://localhost:3000/feedback"),
			WebhookTimeoutSeconds: getEnvAsInt("HELPDESK_WEBHOOK_TIMEOUT_SECONDS", 10),
			Timezone:              getEnv("HELPDESK_TIMEZONE", "UTC"),
		},
		Graph: GraphConfig{
			LoginBaseURL:        getEnv("GRAPH_LOGIN_BASE_URL", "https://login.microsoftonline.com"),
			APIBaseURL:          getEnv("GRAPH_API_BASE_URL", "https://graph.microsoft.com/v1.0"),
			NotificationURL:     os.Getenv("GRAPH_NOTIFICATION_URL"),
			SubscriptionTTLMins: getEnvAsInt("GRAPH_SUBSCRIPTION_TTL_MINUTES", 60*60),
			RenewIntervalMins:   getEnvAsInt("GRAPH_RENEW_INTERVAL_MINUTES", 12*60),
		},
		Sweep: SweepConfig{
			IntervalMinutes:     getEnvAsInt("SWEEP_INTERVAL_MINUTES", 15),
			TicketTimeoutSecond: getEnvAsInt("SWEEP_TICKET_TIMEOUT_SECONDS", 10),
			LockTTLSeconds:      getEnvAsInt("SWEEP_LOCK_TTL_SECONDS", 600),
			BatchSize:           getEnvAsInt("SWEEP_BATCH_SIZE", 500),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "helpdesk.events"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
	}

	if _, err := time.LoadLocation(cfg.Helpdesk.Timezone); err != nil {
		return nil, fmt.Errorf("invalid HELPDESK_TIMEZONE: %w", err)
	}

	return cfg, nil
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

// SLAThreshold is the age after which an unclosed ticket counts as breached.
func (h HelpdeskConfig) SLAThreshold() time.Duration {
	if h.SLAThresholdHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(h.SLAThresholdHours) * time.Hour
}

// Location returns the business timezone, UTC when unset or unknown.
func (h HelpdeskConfig) Location() *time.Location {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil || h.Timezone == "" {
		return time.UTC
	}
	return loc
}

// Clock returns the current time in the business timezone.
func (h HelpdeskConfig) Clock() func() time.Time {
	loc := h.Location()
	return func() time.Time { return time.Now().In(loc) }
}

// WebhookTimeout bounds the processing of a single inbound webhook event.
func (h HelpdeskConfig) WebhookTimeout() time.Duration {
	if h.WebhookTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.WebhookTimeoutSeconds) * time.Second
}

// FeedbackTokenTTL returns the lifetime of feedback links.
func (a AuthConfig) FeedbackTokenTTL() time.Duration {
	if a.FeedbackTokenTTLHours <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(a.FeedbackTokenTTLHours) * time.Hour
}

// SubscriptionTTL returns the requested Graph subscription lifetime.
func (g GraphConfig) SubscriptionTTL() time.Duration {
	if g.SubscriptionTTLMins <= 0 {
		return 60 * time.Hour
	}
	return time.Duration(g.SubscriptionTTLMins) * time.Minute
}

// RenewInterval returns how often subscriptions are renewed.
func (g GraphConfig) RenewInterval() time.Duration {
	if g.RenewIntervalMins <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(g.RenewIntervalMins) * time.Minute
}

// Interval returns the sweep period.
func (s SweepConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// TicketTimeout bounds the work spent on a single ticket during a sweep.
func (s SweepConfig) TicketTimeout() time.Duration {
	if s.TicketTimeoutSecond <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TicketTimeoutSecond) * time.Second
}

// LockTTL returns how long a sweep holds the distributed lock.
func (s SweepConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
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

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
