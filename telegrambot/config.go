package telegrambot

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Supported run modes.
const (
	// Telegram pushes updates to the HTTP endpoint.
	ModeWebhook = "webhook"
	// The bot pulls updates with getUpdates.
	ModePolling = "polling"
)

// Config holds all settings for the bot process.
type Config struct {
	BotToken string `koanf:"bot_token" validate:"required,bottoken"`
	Mode     string `koanf:"mode" validate:"oneof=webhook polling"`

	// HTTP endpoint
	Port                int    `koanf:"port" validate:"min=1,max=65535"`
	WebhookPath         string `koanf:"webhook_path" validate:"required,startswith=/"`
	WebhookURL          string `koanf:"webhook_url" validate:"omitempty,url,startswith=https://"`
	WebhookSecret       string `koanf:"webhook_secret"`
	WebhookSecretHeader string `koanf:"webhook_secret_header" validate:"required"`
	TLSCertPath         string `koanf:"tls_cert_path" validate:"required_with=TLSKeyPath"`
	TLSKeyPath          string `koanf:"tls_key_path" validate:"required_with=TLSCertPath"`
	MaxBodySize         int64  `koanf:"max_body_size" validate:"min=1"`

	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// Outbound replies
	ReplyTimeout   time.Duration `koanf:"reply_timeout" validate:"gt=0"`
	ReplyRateLimit float64       `koanf:"reply_rate_limit" validate:"gt=0"`
	ReplyRateBurst int           `koanf:"reply_rate_burst" validate:"min=1"`

	// Backend forwarding; enabled when BackendAddress is non-empty.
	BackendURL     string        `koanf:"backend_url"`
	DatabaseURL    string        `koanf:"database_url"`
	ForwardTopic   string        `koanf:"forward_topic" validate:"required"`
	ForwardTimeout time.Duration `koanf:"forward_timeout" validate:"gt=0"`

	// Circuit breaker for forwarder and poller
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests" validate:"min=1"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"gt=0"`

	// Long polling
	PollingTimeout       int  `koanf:"polling_timeout" validate:"min=0,max=60"`
	PollingLimit         int  `koanf:"polling_limit" validate:"min=1,max=100"`
	PollingMaxErrors     int  `koanf:"polling_max_errors" validate:"min=0"`
	PollingDeleteWebhook bool `koanf:"polling_delete_webhook"`

	// Logging and error reporting
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	LogFilePath string `koanf:"log_file_path"`
	SentryDSN   string `koanf:"sentry_dsn"`
	Environment string `koanf:"environment"`
}

// DefaultConfig returns a Config with sensible defaults and no token.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeWebhook,
		Port:                 8080,
		WebhookPath:          "/api/telegram/webhook",
		WebhookSecretHeader:  "X-Telegram-Bot-Api-Secret-Token",
		MaxBodySize:          1 << 20,
		ReadTimeout:          10 * time.Second,
		ReadHeaderTimeout:    2 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		ReplyTimeout:         10 * time.Second,
		ReplyRateLimit:       30,
		ReplyRateBurst:       30,
		ForwardTopic:         "telegram.updates",
		ForwardTimeout:       5 * time.Second,
		BreakerMaxRequests:   5,
		BreakerInterval:      2 * time.Minute,
		BreakerTimeout:       60 * time.Second,
		PollingTimeout:       30,
		PollingLimit:         100,
		PollingMaxErrors:     10,
		PollingDeleteWebhook: true,
		LogLevel:             "info",
		Environment:          "development",
	}
}

// BackendAddress returns the forwarding target. BACKEND_URL wins; the legacy
// DATABASE_URL is only used when its scheme names a forwarding backend, since
// it usually holds a database DSN.
func (c Config) BackendAddress() string {
	if c.BackendURL != "" {
		return c.BackendURL
	}
	if forwardableScheme(BackendScheme(c.DatabaseURL)) {
		return c.DatabaseURL
	}
	return ""
}

// DatabaseURLIgnored reports whether DATABASE_URL is the only backend setting
// and cannot be forwarded to.
func (c Config) DatabaseURLIgnored() bool {
	return c.BackendURL == "" && c.DatabaseURL != "" && !forwardableScheme(BackendScheme(c.DatabaseURL))
}

func forwardableScheme(scheme string) bool {
	switch scheme {
	case "http", "https", "redis", "rediss", "kafka":
		return true
	}
	return false
}

// ForwardingEnabled reports whether message updates are relayed to a backend.
func (c Config) ForwardingEnabled() bool {
	return c.BackendAddress() != ""
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// envKeys maps recognised environment variables to config keys.
var envKeys = map[string]string{
	"BOT_TOKEN":              "bot_token",
	"BOT_MODE":               "mode",
	"PORT":                   "port",
	"WEBHOOK_PATH":           "webhook_path",
	"WEBHOOK_URL":            "webhook_url",
	"WEBHOOK_SECRET":         "webhook_secret",
	"WEBHOOK_SECRET_HEADER":  "webhook_secret_header",
	"TLS_CERT_PATH":          "tls_cert_path",
	"TLS_KEY_PATH":           "tls_key_path",
	"MAX_BODY_SIZE":          "max_body_size",
	"READ_TIMEOUT":           "read_timeout",
	"READ_HEADER_TIMEOUT":    "read_header_timeout",
	"WRITE_TIMEOUT":          "write_timeout",
	"IDLE_TIMEOUT":           "idle_timeout",
	"SHUTDOWN_TIMEOUT":       "shutdown_timeout",
	"REPLY_TIMEOUT":          "reply_timeout",
	"REPLY_RATE_LIMIT":       "reply_rate_limit",
	"REPLY_RATE_BURST":       "reply_rate_burst",
	"BACKEND_URL":            "backend_url",
	"DATABASE_URL":           "database_url",
	"FORWARD_TOPIC":          "forward_topic",
	"FORWARD_TIMEOUT":        "forward_timeout",
	"BREAKER_MAX_REQUESTS":   "breaker_max_requests",
	"BREAKER_INTERVAL":       "breaker_interval",
	"BREAKER_TIMEOUT":        "breaker_timeout",
	"POLLING_TIMEOUT":        "polling_timeout",
	"POLLING_LIMIT":          "polling_limit",
	"POLLING_MAX_ERRORS":     "polling_max_errors",
	"POLLING_DELETE_WEBHOOK": "polling_delete_webhook",
	"LOG_LEVEL":              "log_level",
	"LOG_FILE_PATH":          "log_file_path",
	"SENTRY_DSN":             "sentry_dsn",
	"ENVIRONMENT":            "environment",
}

// legacyModeEnv is read when BOT_MODE is unset.
const legacyModeEnv = "MODE"

// validate is the shared validator instance
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use koanf keys in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	validate.RegisterValidation("bottoken", validateBotTokenField)
}

// validateBotTokenField is a validator.Func for bot token format
func validateBotTokenField(fl validator.FieldLevel) bool {
	token := fl.Field().String()
	if token == "" {
		return true // Let 'required' handle empty
	}
	return ValidateBotToken(SecretToken(token)) == nil
}

// LoadConfig loads configuration from multiple sources.
// Precedence (highest to lowest):
//  1. Environment variables (see envKeys)
//  2. YAML config file (if configPath is set and exists)
//  3. DefaultConfig
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s] // unknown variables map to "" and are skipped
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// MODE is the older name for BOT_MODE.
	if _, ok := os.LookupEnv("BOT_MODE"); !ok {
		if mode, ok := os.LookupEnv(legacyModeEnv); ok && mode != "" {
			if err := k.Set("mode", strings.ToLower(strings.TrimSpace(mode))); err != nil {
				return nil, fmt.Errorf("loading %s: %w", legacyModeEnv, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig checks cfg and returns the first problem in a readable form.
func ValidateConfig(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("config: %w", err)
	}

	fe := verrs[0]
	if fe.Field() == "bot_token" {
		if fe.Tag() == "required" {
			return fmt.Errorf("bot_token: %w", ErrBotTokenRequired)
		}
		return fmt.Errorf("bot_token: %w (format: 123456789:ABCdefGHI...)", ErrInvalidBotToken)
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: failed %s", fe.Field(), fe.Tag())
}
