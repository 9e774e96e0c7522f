package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// current holds the live configuration. A file change swaps in a freshly
// decoded Config.
var current atomic.Pointer[Config]

// Get returns the configuration in effect.
func Get() *Config {
	return current.Load()
}

// Source yields the configuration in effect. Services call it per request so
// a reload reaches them.
type Source func() *Config

// Static pins a Source to one configuration.
func Static(c *Config) Source {
	return func() *Config { return c }
}

// Config struct is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Mail      MailConfig      `mapstructure:"mail"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telephony TelephonyConfig `mapstructure:"telephony"`
	Nurture   NurtureConfig   `mapstructure:"nurture"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Rollbar   RollbarConfig   `mapstructure:"rollbar"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	SessionSecret  string   `mapstructure:"session_secret"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	TokenTTL       int      `mapstructure:"token_ttl_minutes"`
	SecureCookies  bool     `mapstructure:"secure_cookies"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MailConfig selects the mail transport and the addresses used by the
// submission and nurture flows.
type MailConfig struct {
	Provider          string `mapstructure:"provider"` // console | sendgrid
	SendgridAPIKey    string `mapstructure:"sendgrid_api_key"`
	FromName          string `mapstructure:"from_name"`
	FromAddress       string `mapstructure:"from_address"`
	OpsAddress        string `mapstructure:"ops_address"`
	AdmissionsAddress string `mapstructure:"admissions_address"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// LLMConfig configures the draft generator.
type LLMConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Model          string   `mapstructure:"model"`
	APIKeys        []string `mapstructure:"api_keys"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RatePerMinute  int      `mapstructure:"rate_per_minute"`
}

// TelephonyConfig points at the outbound voice provider webhook.
type TelephonyConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	AuthToken      string `mapstructure:"auth_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NurtureConfig controls the autonomous calling sweep.
type NurtureConfig struct {
	AutoCall          bool   `mapstructure:"auto_call"`
	AutoCallTestType  string `mapstructure:"auto_call_test_type"`
	SweepIntervalSecs int    `mapstructure:"sweep_interval_seconds"`
	SweepBatch        int    `mapstructure:"sweep_batch"`
	EventsWebhookURL  string `mapstructure:"events_webhook_url"`
	EventsAuthToken   string `mapstructure:"events_auth_token"`
	WebhookWorkers    int    `mapstructure:"webhook_workers"`
}

// CatalogConfig holds the plan catalog location and intake defaults.
type CatalogConfig struct {
	Brand          string `mapstructure:"brand"`
	PlansFile      string `mapstructure:"plans_file"`
	DefaultPlan    string `mapstructure:"default_plan"`
	CouponPrefix   string `mapstructure:"coupon_prefix"`
	TotalQuestions int    `mapstructure:"total_questions"`
}

// RollbarConfig enables error reporting when a token is present.
type RollbarConfig struct {
	Token       string `mapstructure:"token"`
	Environment string `mapstructure:"environment"`
}

// Timeout converts a seconds setting into a duration, falling back to def.
func Timeout(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-session-secret")
	v.SetDefault("server.jwt_secret", "change-me-jwt-secret")
	v.SetDefault("server.token_ttl_minutes", 60*12)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "admissions-db")
	v.SetDefault("database.sslmode", "disable")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	v.SetDefault("mail.provider", "console")
	v.SetDefault("mail.from_name", "Career Lab Admissions")
	v.SetDefault("mail.from_address", "admissions@localhost")
	v.SetDefault("mail.ops_address", "ops@localhost")
	v.SetDefault("mail.admissions_address", "admissions@localhost")
	v.SetDefault("mail.timeout_seconds", 15)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout_seconds", 20)
	v.SetDefault("llm.rate_per_minute", 30)

	v.SetDefault("telephony.timeout_seconds", 10)

	v.SetDefault("nurture.auto_call", false)
	v.SetDefault("nurture.auto_call_test_type", "aptitude")
	v.SetDefault("nurture.sweep_interval_seconds", 30)
	v.SetDefault("nurture.sweep_batch", 20)
	v.SetDefault("nurture.webhook_workers", 2)

	v.SetDefault("catalog.brand", "Career Lab Consulting")
	v.SetDefault("catalog.plans_file", "config/plans.yaml")
	v.SetDefault("catalog.default_plan", "Foundation")
	v.SetDefault("catalog.coupon_prefix", "SCHOLAR")
	v.SetDefault("catalog.total_questions", 25)

	v.SetDefault("rollbar.environment", "development")
}

// NewViper returns a viper instance carrying every default.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// Reload decodes v and publishes the result to Get.
func Reload(v *viper.Viper) error {
	var next Config
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	current.Store(&next)
	return nil
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))

	v := NewViper()

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("ADMISSIONS") // e.g., ADMISSIONS_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := Reload(v); err != nil {
		return err
	}

	// Set up a watch for configuration changes for hot-reloading. The server
	// block (port, secrets, cookies, origins) is only read at startup.
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		if err := Reload(v); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
		}
	})

	log.Info("Configuration loaded successfully")
	return nil
}

// Default returns a configuration populated only from defaults. Used by tests
// and by commands that run before a config file exists.
func Default() *Config {
	var c Config
	_ = NewViper().Unmarshal(&c)
	return &c
}
