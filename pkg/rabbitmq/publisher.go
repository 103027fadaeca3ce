package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

// Routing key prefixes for the two event streams
const (
	OrdersRoutingKey  = "orders"
	CustodyRoutingKey = "custody"
)

// Config holds the configuration for RabbitMQ
type Config struct {
	URL      string
	Exchange string
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes to a durable topic exchange
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   logger.Logger
}

// NewPublisher dials the broker with retries and declares the exchange
func NewPublisher(config Config, logger logger.Logger) (*Publisher, error) {
	if config.Exchange == "" {
		return nil, fmt.Errorf("exchange name cannot be empty")
	}

	var (
		conn *amqp.Connection
		err  error
	)

	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(config.URL)
		if err == nil {
			break
		}
		retryTime := time.Duration(i*i)*time.Second + time.Second
		logger.Warn("Failed to connect to RabbitMQ, retrying", "retryIn", retryTime, "error", err)
		time.Sleep(retryTime)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", config.Exchange, err)
	}

	logger.Info("RabbitMQ exchange declared", "exchange", config.Exchange)

	p := newPublisher(ch, config.Exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger logger.Logger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, logger: logger}
}

// Publish sends body to the exchange. The routing key is topic, optionally suffixed
// with key, so bindings can select one event type or one aggregate.
func (p *Publisher) Publish(ctx context.Context, topic, key string, body []byte, headers map[string]string) error {
	routingKey := topic
	if key != "" {
		routingKey = topic + "." + key
	}

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	err := p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      table,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message to exchange %s with routing key %s: %w",
			p.exchange, routingKey, err)
	}

	p.logger.Debug("Message published to RabbitMQ", "exchange", p.exchange, "routingKey", routingKey)
	return nil
}

// Close closes the channel and the connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
