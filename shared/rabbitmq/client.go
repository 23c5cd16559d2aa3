package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when an operation runs on a closed client.
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// ExchangeConfig describes an exchange declared on connect
type ExchangeConfig struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
}

// QueueConfig describes a queue bound to the job exchange on connect
type QueueConfig struct {
	Name       string
	RoutingKey string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	Exchange           ExchangeConfig
	Events             ExchangeConfig
	Queues             []QueueConfig
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Client represents a RabbitMQ client. Publishing shares one channel guarded
// by a mutex; every consumer and subscription gets its own channel.
type Client struct {
	config *Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	consumers []*amqp.Channel
	closed    bool
}

// NewClient creates a new RabbitMQ client
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

func (c *Client) dsn() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)
}

// connect establishes connection to RabbitMQ with exponential backoff
func (c *Client) connect(ctx context.Context) error {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	b := backoff.NewExponentialBackOff()
	if c.config.RetryInterval > 0 {
		b.InitialInterval = c.config.RetryInterval
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		attempt++
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)
		return amqp.DialConfig(c.dsn(), amqpConfig)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Error("Failed to connect to RabbitMQ",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("retry_after", next),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempt, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to setup exchanges and queues: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.closed = false
	c.mu.Unlock()

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.Exchange.Name),
		slog.String("events_exchange", c.config.Events.Name),
		slog.Int("queues", len(c.config.Queues)),
	)

	return nil
}

// setup declares the job exchange, the events exchange, and the work queues
func (c *Client) setup(ch *amqp.Channel) error {
	for _, ex := range []ExchangeConfig{c.config.Exchange, c.config.Events} {
		if ex.Name == "" {
			continue
		}
		err := ch.ExchangeDeclare(
			ex.Name,       // name
			ex.Type,       // type
			ex.Durable,    // durable
			ex.AutoDelete, // auto-deleted
			false,         // internal
			false,         // no-wait
			nil,           // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err)
		}
	}

	for _, q := range c.config.Queues {
		_, err := ch.QueueDeclare(
			q.Name,       // name
			q.Durable,    // durable
			q.AutoDelete, // auto-delete
			q.Exclusive,  // exclusive
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}

		err = ch.QueueBind(
			q.Name,                 // queue name
			q.RoutingKey,           // routing key
			c.config.Exchange.Name, // exchange
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
		}
	}

	return nil
}

// ensureConnected redials when the broker dropped the connection.
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.conn != nil && !c.conn.IsClosed() {
		var err error
		if c.channel == nil || c.channel.IsClosed() {
			c.channel, err = c.conn.Channel()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to reopen channel: %w", err)
		}
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("RabbitMQ connection lost, reconnecting")
	return c.connect(ctx)
}

// Publish publishes a job message to the job exchange
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	return c.PublishTo(ctx, c.config.Exchange.Name, routingKey, body, contentType, amqp.Persistent)
}

// PublishEvent publishes a transient message to the events exchange
func (c *Client) PublishEvent(ctx context.Context, routingKey string, body []byte) error {
	return c.PublishTo(ctx, c.config.Events.Name, routingKey, body, "application/json", amqp.Transient)
}

// PublishTo publishes a message to any exchange
func (c *Client) PublishTo(ctx context.Context, exchange, routingKey string, body []byte, contentType string, mode uint8) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.channel.PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: mode,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
	)

	return nil
}

// PublishWithRetry publishes a job message with exponential backoff between attempts
func (c *Client) PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error {
	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	if c.config.PublishRetryDelay > 0 {
		b.InitialInterval = c.config.PublishRetryDelay
	}
	if c.config.PublishBackoffMult > 0 {
		b.Multiplier = c.config.PublishBackoffMult
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.Publish(ctx, routingKey, body, contentType)
		if errors.Is(err, ErrNotConnected) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", next),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ after all retries",
			slog.Int("attempts", attempt),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message after %d attempts: %w", attempt, err)
	}

	if attempt > 1 {
		c.logger.Info("Successfully published message to RabbitMQ after retry",
			slog.Int("attempt", attempt),
		)
	}
	return nil
}

// openChannel opens a dedicated channel tracked for Close
func (c *Client) openChannel(ctx context.Context) (*amqp.Channel, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	c.consumers = append(c.consumers, ch)
	return ch, nil
}

// Consume starts consuming a work queue with manual acknowledgement on a dedicated channel
func (c *Client) Consume(ctx context.Context, queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	ch, err := c.openChannel(ctx)
	if err != nil {
		return nil, err
	}

	// per-consumer prefetch, no byte limit
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := ch.Consume(
		queue,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queue),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetch),
	)

	return messages, nil
}

// Subscribe binds a private, auto-deleted queue to the events exchange and
// consumes it with auto-ack. Messages published while no subscriber is bound are dropped.
func (c *Client) Subscribe(ctx context.Context, bindingKey string) (<-chan amqp.Delivery, error) {
	ch, err := c.openChannel(ctx)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare subscription queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, bindingKey, c.config.Events.Name, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind subscription queue: %w", err)
	}

	messages, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume subscription: %w", err)
	}

	c.logger.Info("Subscribed to RabbitMQ events",
		slog.String("exchange", c.config.Events.Name),
		slog.String("binding_key", bindingKey),
		slog.String("queue", q.Name),
	)

	return messages, nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	for _, ch := range append(c.consumers, c.channel) {
		if ch == nil || ch.IsClosed() {
			continue
		}
		if err := ch.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}
	c.consumers = nil

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.conn != nil && !c.conn.IsClosed()
}
