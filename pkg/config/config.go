package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Session  SessionConfig  `mapstructure:"session"`
	AI       AIConfig       `mapstructure:"ai"`
	Bot      BotConfig      `mapstructure:"bot"`
	Invoice  InvoiceConfig  `mapstructure:"invoice"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
	// SeedFile fills the in-memory storage at startup.
	SeedFile string `mapstructure:"seed_file"`
}

type WhatsAppConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MediaPattern string        `mapstructure:"media_pattern"`
}

type QueueConfig struct {
	Rate            float64       `mapstructure:"rate"`
	MaxRetries      int           `mapstructure:"max_retries"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SessionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ProviderConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

type AIConfig struct {
	Preference              []string       `mapstructure:"preference"`
	RefreshInterval         time.Duration  `mapstructure:"refresh_interval"`
	ReplyMaxChars           int            `mapstructure:"reply_max_chars"`
	DepositKeywordThreshold int            `mapstructure:"deposit_keyword_threshold"`
	ImageMaxBytes           int64          `mapstructure:"image_max_bytes"`
	ImageTimeout            time.Duration  `mapstructure:"image_timeout"`
	Gemini                  ProviderConfig `mapstructure:"gemini"`
	Liara                   ProviderConfig `mapstructure:"liara"`
}

type BotConfig struct {
	TrialDays int `mapstructure:"trial_days"`
	MaxFAQs   int `mapstructure:"max_faqs"`
}

type InvoiceConfig struct {
	// BaseURL of the invoice renderer; empty disables invoice delivery.
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "shopbot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)

	v.SetDefault("whatsapp.base_url", "http://localhost:8081")
	v.SetDefault("whatsapp.timeout", 15*time.Second)

	v.SetDefault("ingest.interval", 5*time.Second)
	v.SetDefault("ingest.fetch_timeout", 10*time.Second)
	v.SetDefault("ingest.media_pattern", "/media/")

	v.SetDefault("queue.rate", 3.0)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.send_timeout", 15*time.Second)
	v.SetDefault("queue.shutdown_timeout", 30*time.Second)

	v.SetDefault("session.timeout", 10*time.Minute)
	v.SetDefault("session.sweep_interval", 5*time.Minute)

	v.SetDefault("ai.preference", []string{"gemini", "liara"})
	v.SetDefault("ai.refresh_interval", time.Minute)
	v.SetDefault("ai.reply_max_chars", 200)
	v.SetDefault("ai.deposit_keyword_threshold", 2)
	v.SetDefault("ai.image_max_bytes", 5<<20)
	v.SetDefault("ai.image_timeout", 15*time.Second)
	v.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	v.SetDefault("ai.gemini.temperature", 0.3)
	v.SetDefault("ai.liara.base_url", "https://ai.liara.ir/api/v1")
	v.SetDefault("ai.liara.model", "openai/gpt-4o-mini")
	v.SetDefault("ai.liara.temperature", 0.3)

	v.SetDefault("bot.trial_days", 7)
	v.SetDefault("bot.max_faqs", 20)

	v.SetDefault("invoice.timeout", 30*time.Second)
}

// LoadConfig reads path (if it exists), then the environment. Variables use the
// SHOPBOT_ prefix with dots replaced by underscores, e.g. SHOPBOT_QUEUE_RATE.
// A .env file in the working directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHOPBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env vars for keys viper already knows.
	for _, key := range []string{"database.password", "database.seed_file", "ai.gemini.base_url", "invoice.base_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// DATABASE_URL wins over the database section
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.UseInMemory = config.Database.UseInMemory
		dbConfig.SeedFile = config.Database.SeedFile
		config.Database = dbConfig
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	positive("ingest.interval", c.Ingest.Interval)
	positive("ingest.fetch_timeout", c.Ingest.FetchTimeout)
	positive("queue.send_timeout", c.Queue.SendTimeout)
	positive("session.timeout", c.Session.Timeout)
	positive("session.sweep_interval", c.Session.SweepInterval)
	positive("ai.refresh_interval", c.AI.RefreshInterval)

	if c.Queue.Rate <= 0 {
		errs = append(errs, fmt.Errorf("queue.rate must be positive, got %v", c.Queue.Rate))
	}
	if c.Queue.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("queue.max_retries must not be negative, got %d", c.Queue.MaxRetries))
	}
	if c.WhatsApp.BaseURL == "" {
		errs = append(errs, errors.New("whatsapp.base_url is required"))
	}
	for _, name := range c.AI.Preference {
		if name != "gemini" && name != "liara" {
			errs = append(errs, fmt.Errorf("ai.preference: unknown provider %q", name))
		}
	}
	return errors.Join(errs...)
}
