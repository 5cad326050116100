package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/lifecycle"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Escalation   EscalationConfig
	Assignment   AssignmentConfig
	Locks        LockConfig
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

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory stores.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr selects
// process-local locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" or "console".
	Format  string
	Service string
	Env     string
}

// LockConfig tunes the per-ticket request lock.
type LockConfig struct {
	TicketTTL time.Duration
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	// MerchantKeys maps merchant id to a bcrypt hash of its API key.
	MerchantKeys map[string]string
}

// NotificationConfig holds outbound mail and webhook settings.
type NotificationConfig struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	EmailFrom     string
	Admins        []string
	ManagerAdmins []string
	WebhookURL    string
	QueueSize     int
}

// EscalationConfig drives the periodic escalation scan.
type EscalationConfig struct {
	Enabled      bool
	ScanInterval time.Duration
	BatchSize    int
	LockTTL      time.Duration
	PolicyFile   string
	Thresholds   lifecycle.Thresholds
}

// AssignmentConfig tunes auto-assignment.
type AssignmentConfig struct {
	EscalateWhenNoAgent bool
}

// devJWTSecret is only used when APP_ENV is development.
const devJWTSecret = "dev-secret"

var thresholdEnv = map[domain.TicketPriority]string{
	domain.TicketPriorityCritical: "ESCALATION_THRESHOLD_CRITICAL",
	domain.TicketPriorityHigh:     "ESCALATION_THRESHOLD_HIGH",
	domain.TicketPriorityMedium:   "ESCALATION_THRESHOLD_MEDIUM",
	domain.TicketPriorityLow:      "ESCALATION_THRESHOLD_LOW",
}

// Load reads configuration from environment variables, applying defaults where possible.
// Escalation thresholds have no defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	merchantKeys, err := parseMerchantKeys(os.Getenv("AUTH_MERCHANT_KEYS"))
	if err != nil {
		return nil, err
	}
	escalation, err := loadEscalation()
	if err != nil {
		return nil, err
	}
	appName := getEnv("APP_NAME", "dispute-service")
	appEnv := getEnv("APP_ENV", "development")
	jwtSecret := os.Getenv("AUTH_JWT_SECRET")
	if jwtSecret == "" && appEnv == "development" {
		jwtSecret = devJWTSecret
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  appName,
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: appName,
			Env:     appEnv,
		},
		Auth: AuthConfig{
			JWTSecret:             jwtSecret,
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			MerchantKeys:          merchantKeys,
		},
		Notification: NotificationConfig{
			SMTPHost:      os.Getenv("EMAIL_HOST"),
			SMTPPort:      getEnvAsInt("EMAIL_PORT", 587),
			SMTPUser:      os.Getenv("EMAIL_HOST_USER"),
			SMTPPassword:  os.Getenv("EMAIL_HOST_PASSWORD"),
			EmailFrom:     getEnv("DEFAULT_FROM_EMAIL", "noreply@superpool.test"),
			Admins:        getEnvAsList("NOTIFY_ADMINS"),
			ManagerAdmins: getEnvAsList("NOTIFY_MANAGER_ADMINS"),
			WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
			QueueSize:     getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
		Escalation: escalation,
		Assignment: AssignmentConfig{
			EscalateWhenNoAgent: getEnvAsBool("ASSIGNMENT_ESCALATE_WHEN_NO_AGENT", false),
		},
		Locks: LockConfig{
			TicketTTL: getEnvAsDuration("TICKET_LOCK_TTL", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEscalation() (EscalationConfig, error) {
	cfg := EscalationConfig{
		Enabled:      getEnvAsBool("ESCALATION_ENABLED", true),
		ScanInterval: getEnvAsDuration("ESCALATION_SCAN_INTERVAL", time.Minute),
		BatchSize:    getEnvAsInt("ESCALATION_BATCH_SIZE", 100),
		LockTTL:      getEnvAsDuration("ESCALATION_LOCK_TTL", 30*time.Second),
		PolicyFile:   os.Getenv("ESCALATION_POLICY_FILE"),
		Thresholds:   lifecycle.Thresholds{},
	}
	if cfg.PolicyFile != "" {
		policy, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return cfg, err
		}
		for priority, d := range policy {
			cfg.Thresholds[priority] = d
		}
	}
	for priority, key := range thresholdEnv {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", key, err)
		}
		cfg.Thresholds[priority] = d
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Locks.TicketTTL <= 0 {
		errs = append(errs, errors.New("TICKET_LOCK_TTL must be positive"))
	}
	if f := c.Logger.Format; f != "" && f != "json" && f != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", f))
	}
	if c.Escalation.Enabled {
		if err := c.Escalation.Thresholds.Validate(); err != nil {
			errs = append(errs, err)
		}
		if c.Escalation.ScanInterval <= 0 {
			errs = append(errs, errors.New("ESCALATION_SCAN_INTERVAL must be positive"))
		}
		if c.Escalation.BatchSize <= 0 {
			errs = append(errs, errors.New("ESCALATION_BATCH_SIZE must be positive"))
		}
	}
	if c.Notification.SMTPHost != "" && c.Notification.EmailFrom == "" {
		errs = append(errs, errors.New("DEFAULT_FROM_EMAIL is required when EMAIL_HOST is set"))
	}
	return errors.Join(errs...)
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

// AccessTokenTTL returns the staff token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// parseMerchantKeys reads "merchant-a=$2a$...,merchant-b=$2a$..." pairs.
func parseMerchantKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, hash, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(hash) == "" {
			return nil, fmt.Errorf("invalid AUTH_MERCHANT_KEYS entry %q", pair)
		}
		keys[strings.TrimSpace(id)] = strings.TrimSpace(hash)
	}
	return keys, nil
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

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
