package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Port            int           `yaml:"port" default:"9090" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Store struct {
		// postgres | sqlite | clickhouse
		Driver           string        `yaml:"driver" default:"postgres" validate:"oneof=postgres sqlite clickhouse"`
		DSN              string        `yaml:"dsn"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"5432"`
		Database         string        `yaml:"database" default:"yahoo_stock_data"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		SSLMode          string        `yaml:"ssl_mode" default:"disable"`
		Table            string        `yaml:"table" default:"bars"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"10s"`
		StatementTimeout time.Duration `yaml:"statement_timeout" default:"30s"`
	} `yaml:"store"`
	Universe struct {
		// sqlite | postgres
		Driver       string `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
		DSN          string `yaml:"dsn" default:"yahoo_data.db"`
		Table        string `yaml:"table" default:"universe"`
		GroupColumn  string `yaml:"group_column" default:"group_name"`
		SymbolColumn string `yaml:"symbol_column" default:"symbol"`
		ActiveColumn string `yaml:"active_column" default:"active"`
	} `yaml:"universe"`
	Provider struct {
		BaseURL     string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		SessionURL  string        `yaml:"session_url" default:"https://fc.yahoo.com"`
		CrumbURL    string        `yaml:"crumb_url" default:"https://query2.finance.yahoo.com/v1/test/getcrumb"`
		UserAgent   string        `yaml:"user_agent" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
		Timeout     time.Duration `yaml:"timeout" default:"20s"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	} `yaml:"provider"`
	Retry struct {
		// primary-only | secondary-only | primary-then-secondary
		Policy      string        `yaml:"policy" default:"primary-then-secondary" validate:"oneof=primary-only secondary-only primary-then-secondary"`
		MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1,lte=20"`
		Delay       time.Duration `yaml:"delay" default:"2s"`
		Exponential bool          `yaml:"exponential"`
		MaxDelay    time.Duration `yaml:"max_delay" default:"30s"`
	} `yaml:"retry"`
	Sync struct {
		Groups        []string      `yaml:"groups"`
		StartDate     string        `yaml:"start_date" default:"1970-01-01" validate:"datetime=2006-01-02"`
		Concurrency   int           `yaml:"concurrency" default:"1" validate:"gte=1,lte=64"`
		RequestDelay  time.Duration `yaml:"request_delay" default:"400ms"`
		Incremental   bool          `yaml:"incremental" default:"true"`
		Granularity   string        `yaml:"granularity" default:"monthly" validate:"oneof=monthly daily"`
		SkipOpenMonth bool          `yaml:"skip_open_month"`
		LockTTL       time.Duration `yaml:"lock_ttl" default:"2m"`
		ProgressEvery int           `yaml:"progress_every" default:"20"`
	} `yaml:"sync"`
	Audit struct {
		Threshold     time.Duration `yaml:"threshold" default:"1080h"`
		Concurrency   int           `yaml:"concurrency" default:"8" validate:"gte=1,lte=64"`
		QueryTimeout  time.Duration `yaml:"query_timeout" default:"5s"`
		DetailRecords int           `yaml:"detail_records" default:"20" validate:"gte=0"`
	} `yaml:"audit"`
	Output struct {
		Dir string `yaml:"dir" default:"reports"`
	} `yaml:"output"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"barsync"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"24h"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"barsync.events"`
		LogTopic     string        `yaml:"log_topic" default:"barsync.logs"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Default returns a Config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("UNIVERSE_DSN"); v != "" {
		c.Universe.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			fmt.Sscanf(port, "%d", &c.Redis.Port)
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("SYNC_GROUPS"); v != "" {
		c.Sync.Groups = strings.Split(v, ",")
	}
}

// Validate checks struct tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for sqlite")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Retry.Exponential && c.Retry.MaxDelay < c.Retry.Delay {
		return fmt.Errorf("retry.max_delay must be >= retry.delay")
	}
	return nil
}

// StartTime parses Sync.StartDate; Validate guarantees the layout.
func (c *Config) StartTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.Sync.StartDate)
	return t
}
