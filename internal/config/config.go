// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tg_antispam_bot/internal/domain"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyDataPath          = "DATA_PATH"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyTrustAgeHours     = "TRUST_AGE_HOURS"
	KeyTrustMessageCount = "TRUST_MESSAGE_COUNT"
	KeyMissingJoinPolicy = "MISSING_JOIN_POLICY"
	KeyJoinRetention     = "JOIN_RETENTION_HOURS"
	KeyFlushInterval     = "FLUSH_INTERVAL_SECONDS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv            = EnvProduction
	DefaultLogLevel          = "info"
	DefaultHTTPPort          = 8080
	DefaultTrustAgeHours     = 24
	DefaultTrustMessageCount = 3
	DefaultJoinRetentionHrs  = 720
	DefaultFlushIntervalSecs = 60
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must
// rely on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyDataPath,
		Example:     "/var/lib/tg-antispam",
		Required:    true,
		Description: "Directory for the persisted moderation state database.",
		Notes:       "Created on first start when missing; must be writable.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeyTrustAgeHours,
		Example:     strconv.Itoa(DefaultTrustAgeHours),
		Default:     strconv.Itoa(DefaultTrustAgeHours),
		Description: "Hours since joining after which a member is trusted.",
	},
	{
		Key:         KeyTrustMessageCount,
		Example:     strconv.Itoa(DefaultTrustMessageCount),
		Default:     strconv.Itoa(DefaultTrustMessageCount),
		Description: "Tracked messages after which a member is trusted.",
	},
	{
		Key:         KeyMissingJoinPolicy,
		Example:     string(domain.PolicyAssumeNew) + " / " + string(domain.PolicyTrusted),
		Default:     string(domain.PolicyAssumeNew),
		Description: "Classification of senders without a recorded join time.",
	},
	{
		Key:         KeyJoinRetention,
		Example:     strconv.Itoa(DefaultJoinRetentionHrs),
		Default:     strconv.Itoa(DefaultJoinRetentionHrs),
		Description: "Hours before the sweep prunes stale probation entries.",
		Notes:       "Set to 0 to disable the sweep entirely.",
	},
	{
		Key:         KeyFlushInterval,
		Example:     strconv.Itoa(DefaultFlushIntervalSecs),
		Default:     strconv.Itoa(DefaultFlushIntervalSecs),
		Description: "Seconds between periodic state flushes to disk.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	DataPath          string
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	TrustAge          time.Duration
	TrustMessageCount int
	MissingJoinPolicy domain.MissingJoinPolicy
	JoinRetention     time.Duration
	FlushInterval     time.Duration
}

// Load resolves configuration from the environment (with optional dotenv in
// development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken: strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		DataPath:      strings.TrimSpace(os.Getenv(KeyDataPath)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	if cfg.DataPath == "" {
		missing = append(missing, KeyDataPath)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	port, err := positiveIntEnv(KeyHTTPPort, DefaultHTTPPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPPort = port

	trustAgeHours, err := positiveIntEnv(KeyTrustAgeHours, DefaultTrustAgeHours)
	if err != nil {
		return Config{}, err
	}
	cfg.TrustAge = time.Duration(trustAgeHours) * time.Hour

	trustCount, err := positiveIntEnv(KeyTrustMessageCount, DefaultTrustMessageCount)
	if err != nil {
		return Config{}, err
	}
	cfg.TrustMessageCount = trustCount

	policyRaw := firstNonEmpty(normalizeEnv(os.Getenv(KeyMissingJoinPolicy)), string(domain.PolicyAssumeNew))
	policy, err := domain.ParseMissingJoinPolicy(policyRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyMissingJoinPolicy, err)
	}
	cfg.MissingJoinPolicy = policy

	retentionHours, err := nonNegativeIntEnv(KeyJoinRetention, DefaultJoinRetentionHrs)
	if err != nil {
		return Config{}, err
	}
	cfg.JoinRetention = time.Duration(retentionHours) * time.Hour

	flushSeconds, err := positiveIntEnv(KeyFlushInterval, DefaultFlushIntervalSecs)
	if err != nil {
		return Config{}, err
	}
	cfg.FlushInterval = time.Duration(flushSeconds) * time.Second

	return cfg, nil
}

// FormatRedacted renders a config summary safe for logs and stdout: the token
// is masked down to a short prefix.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "telegram_token: %s\n", redactToken(cfg.TelegramToken))
	fmt.Fprintf(&b, "data_path: %s\n", cfg.DataPath)
	fmt.Fprintf(&b, "app_env: %s\n", cfg.AppEnv)
	fmt.Fprintf(&b, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "http_port: %d\n", cfg.HTTPPort)
	fmt.Fprintf(&b, "trust_age: %s\n", cfg.TrustAge)
	fmt.Fprintf(&b, "trust_message_count: %d\n", cfg.TrustMessageCount)
	fmt.Fprintf(&b, "missing_join_policy: %s\n", cfg.MissingJoinPolicy)
	fmt.Fprintf(&b, "join_retention: %s\n", cfg.JoinRetention)
	fmt.Fprintf(&b, "flush_interval: %s\n", cfg.FlushInterval)

	return b.String()
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

func redactToken(token string) string {
	if len(token) <= 4 {
		return "...redacted"
	}

	return token[:4] + "...redacted"
}

func positiveIntEnv(key string, fallback int) (int, error) {
	value, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func nonNegativeIntEnv(key string, fallback int) (int, error) {
	value, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return value, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return value, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
