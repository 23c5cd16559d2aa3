package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "verse_journal", cfg.Database.Database)
				assert.Equal(t, "poetry", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "poetry.events", cfg.RabbitMQ.Events.Name)
				require.Len(t, cfg.RabbitMQ.Queues, 2)
				assert.Equal(t, "poetry.text", cfg.RabbitMQ.Queues[0].Name)
				assert.Equal(t, "audio", cfg.RabbitMQ.Queues[1].RoutingKey)
				assert.Equal(t, 3, cfg.Worker.Audio.Concurrency)
				assert.Equal(t, 10*time.Minute, cfg.Worker.Audio.LockDuration)
				assert.Equal(t, "verse-journal", cfg.App.Name)
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "gemini-1.5-pro", cfg.Gemini.TextModel)
	assert.Equal(t, "gemini-1.5-pro", cfg.Gemini.TokenModel)
	assert.Equal(t, "gemini-2.5-pro-preview-tts", cfg.Gemini.TTSModel)
	assert.Equal(t, "Charon", cfg.Gemini.Voice)
	assert.Equal(t, "en-US", cfg.Gemini.Language)
	assert.Equal(t, time.Hour, cfg.Storage.SignedURLTTL)
	assert.Equal(t, "/ws/poem", cfg.Realtime.Path)
	assert.Equal(t, 32, cfg.Realtime.SendBuffer)
	assert.Equal(t, time.Hour, cfg.Worker.Text.CompletedRetention)
	assert.Equal(t, 5*time.Minute, cfg.Worker.Text.FailedRetention)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY": "from-env",
		"JWT_SECRET":     "env-secret-env-secret-env-secret-00",
	}
	cfg := &Config{Gemini: GeminiConfig{APIKey: "from-file"}, Database: DatabaseConfig{Password: "file-pass"}}

	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "from-env", cfg.Gemini.APIKey)
	assert.Equal(t, env["JWT_SECRET"], cfg.Auth.JWTSecret)
	assert.Equal(t, "file-pass", cfg.Database.Password)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "verse_journal",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "poetry"},
			Events:   ExchangeConfig{Name: "poetry.events"},
			Queues:   []QueueConfig{{Name: "poetry.text", RoutingKey: "text"}},
		},
		Gemini:  GeminiConfig{APIKey: "key"},
		Storage: StorageConfig{Bucket: "bucket"},
		Auth:    AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef", TokenTTL: time.Hour},
		Worker: WorkerConfig{
			Text:            KindConfig{Concurrency: 1, LockDuration: 5 * time.Minute, MaxAttempts: 1},
			Audio:           KindConfig{Concurrency: 3, LockDuration: 10 * time.Minute, MaxAttempts: 1},
			ShutdownTimeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{StallCheckInterval: 30 * time.Second, SweepInterval: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = 0 },
			errString: "invalid database port",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty events exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Events.Name = "" },
			errString: "rabbitmq events exchange name is required",
		},
		{
			name:      "no queues",
			mutate:    func(c *Config) { c.RabbitMQ.Queues = nil },
			errString: "at least one rabbitmq queue is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queues[0].Name = "" },
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "missing gemini key",
			mutate:    func(c *Config) { c.Gemini.APIKey = "" },
			errString: "gemini api key is required",
		},
		{
			name:      "missing bucket",
			mutate:    func(c *Config) { c.Storage.Bucket = "" },
			errString: "storage bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "server port too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "server port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "short jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, errString: "jwt secret must be at least"},
		{name: "missing token ttl", mutate: func(c *Config) { c.Auth.TokenTTL = 0 }, errString: "token_ttl"},
		{name: "common check still runs", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero text concurrency", mutate: func(c *Config) { c.Worker.Text.Concurrency = 0 }, errString: "worker text concurrency"},
		{name: "zero audio lock", mutate: func(c *Config) { c.Worker.Audio.LockDuration = 0 }, errString: "worker audio lock_duration"},
		{name: "zero attempts", mutate: func(c *Config) { c.Worker.Audio.MaxAttempts = 0 }, errString: "worker audio max_attempts"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "shutdown_timeout"},
		{name: "zero stall interval", mutate: func(c *Config) { c.Monitor.StallCheckInterval = 0 }, errString: "stall_check_interval"},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Monitor.SweepInterval = 0 }, errString: "sweep_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
