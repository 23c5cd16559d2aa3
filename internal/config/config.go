package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
	// MinJWTSecretLength is the shortest accepted HMAC signing secret
	MinJWTSecretLength = 32
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
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
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Events     ExchangeConfig   `yaml:"events"`
	Queues     []QueueConfig    `yaml:"queues"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds one work queue and the routing key binding it to the job exchange
type QueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds per-kind job execution settings
type WorkerConfig struct {
	Text            KindConfig    `yaml:"text"`
	Audio           KindConfig    `yaml:"audio"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// KindConfig bounds how one job kind is executed and retained
type KindConfig struct {
	Concurrency        int           `yaml:"concurrency"`
	LockDuration       time.Duration `yaml:"lock_duration"`
	MaxAttempts        int           `yaml:"max_attempts"`
	CompletedRetention time.Duration `yaml:"completed_retention"`
	FailedRetention    time.Duration `yaml:"failed_retention"`
}

// MonitorConfig holds stall detection and retention sweep intervals
type MonitorConfig struct {
	StallCheckInterval time.Duration `yaml:"stall_check_interval"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
}

// GeminiConfig holds generation provider settings
type GeminiConfig struct {
	APIKey     string        `yaml:"api_key"`
	TextModel  string        `yaml:"text_model"`
	TokenModel string        `yaml:"token_model"`
	TTSModel   string        `yaml:"tts_model"`
	Voice      string        `yaml:"voice"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	SignedURLTTL    time.Duration `yaml:"signed_url_ttl"`
	DeleteWait      time.Duration `yaml:"delete_wait"`
}

// AuthConfig holds token signing settings
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// RealtimeConfig holds websocket gateway settings
type RealtimeConfig struct {
	Path           string        `yaml:"path"`
	SendBuffer     int           `yaml:"send_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv(os.Getenv)
	config.applyDefaults()

	return &config, nil
}

// applyEnv overrides secrets from the environment so they stay out of the YAML file
func (c *Config) applyEnv(getenv func(string) string) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"DB_PASSWORD", &c.Database.Password},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
		{"GEMINI_API_KEY", &c.Gemini.APIKey},
		{"S3_ACCESS_KEY_ID", &c.Storage.AccessKeyID},
		{"S3_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey},
		{"JWT_SECRET", &c.Auth.JWTSecret},
	}
	for _, o := range overrides {
		if v := getenv(o.key); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = "gemini-1.5-pro"
	}
	if c.Gemini.TokenModel == "" {
		c.Gemini.TokenModel = c.Gemini.TextModel
	}
	if c.Gemini.TTSModel == "" {
		c.Gemini.TTSModel = "gemini-2.5-pro-preview-tts"
	}
	if c.Gemini.Voice == "" {
		c.Gemini.Voice = "Charon"
	}
	if c.Gemini.Language == "" {
		c.Gemini.Language = "en-US"
	}
	if c.Storage.SignedURLTTL == 0 {
		c.Storage.SignedURLTTL = time.Hour
	}
	if c.Realtime.Path == "" {
		c.Realtime.Path = "/ws/poem"
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = 16
	}
	c.Worker.Text.applyDefaults(1, 5*time.Minute)
	c.Worker.Audio.applyDefaults(3, 10*time.Minute)
}

func (k *KindConfig) applyDefaults(concurrency int, lock time.Duration) {
	if k.Concurrency == 0 {
		k.Concurrency = concurrency
	}
	if k.LockDuration == 0 {
		k.LockDuration = lock
	}
	if k.MaxAttempts == 0 {
		k.MaxAttempts = 1
	}
	if k.CompletedRetention == 0 {
		k.CompletedRetention = time.Hour
	}
	if k.FailedRetention == 0 {
		k.FailedRetention = 5 * time.Minute
	}
}

// Validate checks the settings both services depend on
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Events.Name == "" {
		return fmt.Errorf("rabbitmq events exchange name is required")
	}

	if len(c.RabbitMQ.Queues) == 0 {
		return fmt.Errorf("at least one rabbitmq queue is required")
	}

	for i, q := range c.RabbitMQ.Queues {
		if q.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required (queue %d)", i)
		}
	}

	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api key is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	return nil
}

// ValidateAPIConfig checks settings required by the API service
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("jwt secret must be at least %d characters", MinJWTSecretLength)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token_ttl must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks settings required by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	for name, k := range map[string]KindConfig{"text": c.Worker.Text, "audio": c.Worker.Audio} {
		if k.Concurrency <= 0 {
			return fmt.Errorf("worker %s concurrency must be greater than 0", name)
		}
		if k.LockDuration <= 0 {
			return fmt.Errorf("worker %s lock_duration must be greater than 0", name)
		}
		if k.MaxAttempts <= 0 {
			return fmt.Errorf("worker %s max_attempts must be greater than 0", name)
		}
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Monitor.StallCheckInterval <= 0 {
		return fmt.Errorf("monitor stall_check_interval must be greater than 0")
	}

	if c.Monitor.SweepInterval <= 0 {
		return fmt.Errorf("monitor sweep_interval must be greater than 0")
	}

	return nil
}
