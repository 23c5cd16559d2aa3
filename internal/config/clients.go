package config

import (
	"fmt"
	"time"

	"github.com/cuongbtq/verse-journal/internal/domain"
	"github.com/cuongbtq/verse-journal/internal/queue"
	"github.com/cuongbtq/verse-journal/internal/realtime"
	"github.com/cuongbtq/verse-journal/shared/gemini"
	"github.com/cuongbtq/verse-journal/shared/logger"
	"github.com/cuongbtq/verse-journal/shared/objectstore"
	"github.com/cuongbtq/verse-journal/shared/postgresql"
	"github.com/cuongbtq/verse-journal/shared/rabbitmq"
)

// LoggerConfig converts the logging section for shared/logger
func (c *LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:        c.Level,
		Format:       c.Format,
		Output:       c.Output,
		EnableSource: c.EnableCaller,
		TimeFormat:   time.RFC3339,
	}
}

// ClientConfig converts the database section for shared/postgresql
func (c *DatabaseConfig) ClientConfig() *postgresql.Config {
	return &postgresql.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// ClientConfig converts the rabbitmq section for shared/rabbitmq
func (c *RabbitMQConfig) ClientConfig() *rabbitmq.Config {
	queues := make([]rabbitmq.QueueConfig, len(c.Queues))
	for i, q := range c.Queues {
		queues[i] = rabbitmq.QueueConfig{
			Name:       q.Name,
			RoutingKey: q.RoutingKey,
			Durable:    q.Durable,
			AutoDelete: q.AutoDelete,
			Exclusive:  q.Exclusive,
		}
	}

	return &rabbitmq.Config{
		Host:               c.Host,
		Port:               c.Port,
		User:               c.User,
		Password:           c.Password,
		VHost:              c.VHost,
		Exchange:           rabbitmq.ExchangeConfig(c.Exchange),
		Events:             rabbitmq.ExchangeConfig(c.Events),
		Queues:             queues,
		RetryAttempts:      c.Connection.RetryAttempts,
		RetryInterval:      c.Connection.RetryInterval,
		Heartbeat:          c.Connection.Heartbeat,
		ConnectionTimeout:  c.Connection.ConnectionTimeout,
		PublishRetries:     c.Publish.RetryAttempts,
		PublishRetryDelay:  c.Publish.RetryInterval,
		PublishBackoffMult: c.Publish.BackoffMultiplier,
	}
}

// QueueFor returns the work queue bound to kind's routing key
func (c *RabbitMQConfig) QueueFor(kind domain.JobKind) (string, error) {
	for _, q := range c.Queues {
		if q.RoutingKey == string(kind) {
			return q.Name, nil
		}
	}
	return "", fmt.Errorf("no rabbitmq queue is bound to routing key %q", kind)
}

// Kind returns the settings for kind
func (w *WorkerConfig) Kind(kind domain.JobKind) KindConfig {
	switch kind {
	case domain.JobKindText:
		return w.Text
	case domain.JobKindAudio:
		return w.Audio
	}
	return KindConfig{}
}

// QueueOptions builds the queue runtime options for every job kind
func (w *WorkerConfig) QueueOptions() map[domain.JobKind]queue.KindOptions {
	options := make(map[domain.JobKind]queue.KindOptions, len(domain.JobKinds()))
	for _, kind := range domain.JobKinds() {
		k := w.Kind(kind)
		options[kind] = queue.KindOptions{
			RoutingKey:         string(kind),
			LockDuration:       k.LockDuration,
			MaxAttempts:        k.MaxAttempts,
			CompletedRetention: k.CompletedRetention,
			FailedRetention:    k.FailedRetention,
		}
	}
	return options
}

// ClientConfig converts the gemini section for shared/gemini
func (c *GeminiConfig) ClientConfig() gemini.Config {
	return gemini.Config{
		APIKey:     c.APIKey,
		TextModel:  c.TextModel,
		TokenModel: c.TokenModel,
		TTSModel:   c.TTSModel,
		Timeout:    c.Timeout,
	}
}

// ClientConfig converts the storage section for shared/objectstore
func (c *StorageConfig) ClientConfig() objectstore.Config {
	return objectstore.Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UsePathStyle:    c.UsePathStyle,
		SignedURLTTL:    c.SignedURLTTL,
		DeleteWait:      c.DeleteWait,
	}
}

// GatewayConfig converts the realtime section for the websocket gateway
func (c *RealtimeConfig) GatewayConfig() realtime.Config {
	return realtime.Config{
		SendBuffer:     c.SendBuffer,
		WriteTimeout:   c.WriteTimeout,
		PingInterval:   c.PingInterval,
		AllowedOrigins: c.AllowedOrigins,
	}
}
