package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/trust-trace-api/internal/api"
	"github.com/vaidashi/trust-trace-api/internal/config"
	"github.com/vaidashi/trust-trace-api/internal/database"
	"github.com/vaidashi/trust-trace-api/internal/handlers"
	"github.com/vaidashi/trust-trace-api/internal/outbox"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	"github.com/vaidashi/trust-trace-api/internal/service"
	"github.com/vaidashi/trust-trace-api/pkg/circuitbreaker"
	"github.com/vaidashi/trust-trace-api/pkg/kafka"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
	"github.com/vaidashi/trust-trace-api/pkg/rabbitmq"
)

type publisher interface {
	outbox.Publisher
	Close() error
}

// app owns every long-lived component and their shutdown order
type app struct {
	logger    logger.Logger
	db        *database.Database
	server    *api.Server
	processor *outbox.Processor
	publisher publisher
	consumer  *kafka.Consumer
}

func newApp(ctx context.Context, cfg *config.Config, l logger.Logger) (*app, error) {
	a := &app{logger: l}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache := service.NewJourneyCache()
	inventory := service.NewInventoryService(store, l)
	ledger := service.NewTraceabilityService(store, cache, l)
	orders := service.NewOrderService(store, inventory, ledger, l)

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "event-broker",
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	})
	a.processor = outbox.NewProcessor(store.Outbox(), breaker, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, l)

	if err := a.wireBroker(cfg, cache); err != nil {
		a.closeAll()
		return nil, err
	}

	var ping func(context.Context) error
	if a.db != nil {
		ping = a.db.Ping
	}

	a.server = api.NewServer(cfg, api.Dependencies{
		Orders:    orders,
		Ledger:    ledger,
		Inventory: inventory,
		Outbox:    a.processor,
		Ping:      ping,
	}, api.HeaderDirectory{}, l)

	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		a.logger.Warn("Using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	db, err := database.New(cfg, a.logger)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a.db = db
	return repository.NewPostgresStore(db, a.logger), nil
}

func (a *app) wireBroker(cfg *config.Config, cache *service.JourneyCache) error {
	events := cfg.Events

	switch events.Broker {
	case config.BrokerKafka:
		producer, err := kafka.NewProducer(events.Kafka.Brokers, a.logger)
		if err != nil {
			return err
		}
		a.publisher = producer
		outbox.RegisterPublishers(a.processor, producer, events.Kafka.OrdersTopic, events.Kafka.CustodyTopic, a.logger)

		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       events.Kafka.Brokers,
			Topics:        []string{events.Kafka.OrdersTopic, events.Kafka.CustodyTopic},
			ConsumerGroup: events.Kafka.ConsumerGroup,
		}, a.logger)
		if err != nil {
			return err
		}

		h := handlers.NewSupplyChainEventsHandler(cache, a.logger)
		consumer.RegisterHandler(events.Kafka.OrdersTopic, h)
		consumer.RegisterHandler(events.Kafka.CustodyTopic, h)
		a.consumer = consumer

	case config.BrokerRabbitMQ:
		pub, err := rabbitmq.NewPublisher(rabbitmq.Config{URL: events.RabbitMQ.URL, Exchange: events.RabbitMQ.Exchange}, a.logger)
		if err != nil {
			return err
		}
		a.publisher = pub
		outbox.RegisterPublishers(a.processor, pub, rabbitmq.OrdersRoutingKey, rabbitmq.CustodyRoutingKey, a.logger)

	case config.BrokerNone:
		outbox.RegisterLogging(a.processor, a.logger)

	default:
		return fmt.Errorf("unknown event broker %q", events.Broker)
	}

	return nil
}

func (a *app) start() {
	a.processor.Start()

	if a.consumer != nil {
		// The API serves without the consumer; journeys then rely on local invalidation only
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}
}

func (a *app) shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.processor.Stop()
	return errors.Join(err, a.closeAll())
}

func (a *app) closeAll() error {
	var errs error

	if a.consumer != nil {
		errs = errors.Join(errs, a.consumer.Stop())
	}
	if a.publisher != nil {
		errs = errors.Join(errs, a.publisher.Close())
	}
	if a.db != nil {
		errs = errors.Join(errs, a.db.Close())
	}

	return errs
}
