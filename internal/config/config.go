package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Engine types
const (
	EngineExec      = "exec"
	EngineSimulated = "simulated"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Metadata  MetadataConfig  `yaml:"metadata"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the job store and holds PostgreSQL connection settings
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds the lifecycle event exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig optionally declares an audit queue bound to the exchange
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	BindingKey string `yaml:"binding_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry and buffering settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BufferSize        int           `yaml:"buffer_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// SchedulerConfig holds dispatch settings
type SchedulerConfig struct {
	Concurrency         int           `yaml:"concurrency"`
	AverageJobDuration  time.Duration `yaml:"average_job_duration"`
	AllowRerunCancelled bool          `yaml:"allow_rerun_cancelled"`
	RetryInterval       time.Duration `yaml:"retry_interval"`
}

// EngineConfig selects and tunes the docking engine
type EngineConfig struct {
	Type                 string        `yaml:"type"`
	Command              string        `yaml:"command"`
	Args                 []string      `yaml:"args"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           *int          `yaml:"max_retries"` // nil means 1; 0 disables retries
	RetryDelay           time.Duration `yaml:"retry_delay"`
	StructureURLTemplate string        `yaml:"structure_url_template"`
	SimulatedDuration    time.Duration `yaml:"simulated_duration"`
}

// MetadataConfig points at the candidate/target metadata service. An empty
// BaseURL disables name lookups.
type MetadataConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retry_max"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max"`
	RedisURL     string        `yaml:"redis_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and applies defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "docking-service"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.RabbitMQ.Exchange.Name == "" {
		c.RabbitMQ.Exchange.Name = "docking.events"
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}
	if c.RabbitMQ.Connection.Heartbeat == 0 {
		c.RabbitMQ.Connection.Heartbeat = 10 * time.Second
	}
	if c.RabbitMQ.Publish.RetryAttempts == 0 {
		c.RabbitMQ.Publish.RetryAttempts = 3
	}
	if c.RabbitMQ.Publish.RetryInterval == 0 {
		c.RabbitMQ.Publish.RetryInterval = 100 * time.Millisecond
	}
	if c.RabbitMQ.Publish.BackoffMultiplier == 0 {
		c.RabbitMQ.Publish.BackoffMultiplier = 2
	}
	if c.RabbitMQ.Publish.BufferSize == 0 {
		c.RabbitMQ.Publish.BufferSize = 256
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = 2
	}
	if c.Scheduler.AverageJobDuration == 0 {
		c.Scheduler.AverageJobDuration = 5 * time.Minute
	}
	if c.Scheduler.RetryInterval == 0 {
		c.Scheduler.RetryInterval = 2 * time.Second
	}

	if c.Engine.Type == "" {
		c.Engine.Type = EngineExec
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 20 * time.Minute
	}
	if c.Engine.MaxRetries == nil {
		retries := 1
		c.Engine.MaxRetries = &retries
	}
	if c.Engine.RetryDelay == 0 {
		c.Engine.RetryDelay = 2 * time.Second
	}
	if c.Engine.SimulatedDuration == 0 {
		c.Engine.SimulatedDuration = 3 * time.Second
	}

	if c.Metadata.Timeout == 0 {
		c.Metadata.Timeout = 5 * time.Second
	}
	if c.Metadata.CacheTTL == 0 {
		c.Metadata.CacheTTL = time.Hour
	}
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		errs = multierror.Append(errs, fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort))
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("database host is required"))
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			errs = multierror.Append(errs, fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort))
		}
		if c.Database.Database == "" {
			errs = multierror.Append(errs, fmt.Errorf("database name is required"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown database driver %q (want %s or %s)", c.Database.Driver, DriverPostgres, DriverMemory))
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("rabbitmq host is required"))
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			errs = multierror.Append(errs, fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort))
		}
	}

	if c.Scheduler.Concurrency < 1 {
		errs = multierror.Append(errs, fmt.Errorf("scheduler concurrency must be greater than 0"))
	}
	if c.Scheduler.AverageJobDuration <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("scheduler average_job_duration must be greater than 0"))
	}

	switch c.Engine.Type {
	case EngineSimulated:
	case EngineExec:
		if c.Engine.Command == "" {
			errs = multierror.Append(errs, fmt.Errorf("engine command is required for the exec engine"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown engine type %q (want %s or %s)", c.Engine.Type, EngineExec, EngineSimulated))
	}
	if c.Engine.Timeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("engine timeout must be greater than 0"))
	}
	if c.Engine.MaxRetries != nil && *c.Engine.MaxRetries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("engine max_retries must not be negative"))
	}

	if c.Metadata.BaseURL != "" {
		if u, err := url.Parse(c.Metadata.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("invalid metadata base_url %q", c.Metadata.BaseURL))
		}
	}

	return errs.ErrorOrNil()
}
