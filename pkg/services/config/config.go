package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/storage-guard/pkg/services/events/kafka"
	"github.com/de-tools/storage-guard/pkg/services/events/sqs"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/services/provider/aws"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const EnvPrefix = "STORAGEGUARD"

const (
	TransportNone  = "none"
	TransportSQS   = "sqs"
	TransportKafka = "kafka"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Events   EventsConfig   `mapstructure:"events"`
	Controls ControlsConfig `mapstructure:"controls"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type ScannerConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	AccountConcurrency  int           `mapstructure:"account_concurrency"`
	ResourceConcurrency int           `mapstructure:"resource_concurrency"`
	RatePerSecond       float64       `mapstructure:"rate_per_second"`
	Burst               int           `mapstructure:"burst"`
	Retry               RetryConfig   `mapstructure:"retry"`
	SessionDuration     time.Duration `mapstructure:"session_duration"`
	RunOnStart          bool          `mapstructure:"run_on_start"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type SQSConfig struct {
	QueueURL          string        `mapstructure:"queue_url"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	BatchSize         int32         `mapstructure:"batch_size"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

type EventsConfig struct {
	Transport string      `mapstructure:"transport"`
	SQS       SQSConfig   `mapstructure:"sqs"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

type ControlsConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

type AccountsConfig struct {
	SeedPath string `mapstructure:"seed_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.path", "storage-guard.db")

	v.SetDefault("scanner.interval", "1h")
	v.SetDefault("scanner.account_concurrency", 4)
	v.SetDefault("scanner.resource_concurrency", 8)
	v.SetDefault("scanner.rate_per_second", 10)
	v.SetDefault("scanner.burst", 20)
	v.SetDefault("scanner.retry.max_attempts", 4)
	v.SetDefault("scanner.retry.base_delay", "500ms")
	v.SetDefault("scanner.retry.max_delay", "10s")
	v.SetDefault("scanner.session_duration", "15m")
	v.SetDefault("scanner.run_on_start", true)

	v.SetDefault("aws.region", aws.DefaultRegion)

	v.SetDefault("events.transport", TransportNone)
	v.SetDefault("events.sqs.queue_url", "")
	v.SetDefault("events.sqs.wait_time", "20s")
	v.SetDefault("events.sqs.visibility_timeout", "60s")
	v.SetDefault("events.sqs.batch_size", 10)
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "storage-events")
	v.SetDefault("events.kafka.group", "storage-guard")

	v.SetDefault("controls.catalog_path", "")
	v.SetDefault("accounts.seed_path", "")
	v.SetDefault("log.level", "info")
}

// Load reads the optional config file at path, then applies STORAGEGUARD_* overrides.
// An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Scanner.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scanner.interval must be positive"))
	}
	switch c.Events.Transport {
	case TransportNone:
	case TransportSQS:
		if c.Events.SQS.QueueURL == "" {
			errs = append(errs, fmt.Errorf("events.sqs.queue_url is required for the sqs transport"))
		}
	case TransportKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("events.kafka.brokers is required for the kafka transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events.transport %q", c.Events.Transport))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) CallConfig() provider.CallConfig {
	return provider.CallConfig{
		RatePerSecond: c.Scanner.RatePerSecond,
		Burst:         c.Scanner.Burst,
		Retry: provider.RetryConfig{
			MaxAttempts: c.Scanner.Retry.MaxAttempts,
			BaseDelay:   c.Scanner.Retry.BaseDelay,
			MaxDelay:    c.Scanner.Retry.MaxDelay,
			Jitter:      provider.DefaultRetryConfig().Jitter,
		},
	}
}

func (c *Config) AWSProvider() aws.Config {
	return aws.Config{
		Region:          c.AWS.Region,
		SessionDuration: c.Scanner.SessionDuration,
		Calls:           c.CallConfig(),
	}
}

func (c *Config) Orchestrator() scanner.Config {
	return scanner.Config{
		AccountConcurrency:  c.Scanner.AccountConcurrency,
		ResourceConcurrency: c.Scanner.ResourceConcurrency,
	}
}

func (c *Config) Scheduler() scanner.SchedulerConfig {
	return scanner.SchedulerConfig{
		Interval:   c.Scanner.Interval,
		RunOnStart: c.Scanner.RunOnStart,
	}
}

func (c *Config) SQS() sqs.Config {
	cfg := sqs.DefaultConfig()
	cfg.QueueURL = c.Events.SQS.QueueURL
	cfg.WaitTime = c.Events.SQS.WaitTime
	cfg.VisibilityTimeout = c.Events.SQS.VisibilityTimeout
	cfg.BatchSize = c.Events.SQS.BatchSize
	return cfg
}

func (c *Config) Kafka() kafka.Config {
	cfg := kafka.DefaultConfig()
	cfg.Brokers = c.Events.Kafka.Brokers
	cfg.Topic = c.Events.Kafka.Topic
	cfg.Group = c.Events.Kafka.Group
	return cfg
}
