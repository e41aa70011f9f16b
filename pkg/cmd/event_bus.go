package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/channels/kafka"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/eventbus/amqp"
	"github.com/google/uuid"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

const defaultAMQPExchange = "flowrun.events"

// NewEventBus returns the publisher execution progress is sent through.
// Kafka brokers come from KAFKA_BROKERS, the RabbitMQ url from AMQP_URL.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.Publisher, error) {
	switch provider {
	case "", "none":
		return eventbus.NopPublisher{}, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		brokers, err := kafka.BrokersFromEnv()
		if err != nil {
			return nil, err
		}

		pub, err := kafka.CreatePublisher(watermill.NewSlogLogger(logger), brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, nil), nil
	case "amqp", "rabbitmq":
		url := os.Getenv("AMQP_URL")
		if url == "" {
			return nil, errors.New("AMQP_URL environment variable is not set")
		}

		exchange := os.Getenv("AMQP_EXCHANGE")
		if exchange == "" {
			exchange = defaultAMQPExchange
		}

		publisher, err := amqp.Dial(url, exchange, logger)
		if err != nil {
			return nil, err
		}

		return publisher, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}

// NewEventSubscriber returns a subscriber following the progress events of provider
// and a func releasing it. The in-process gochannel bus can only be followed through
// the publisher of the same process; pass it as publisher, or nil when there is none.
func NewEventSubscriber(provider string, publisher eventbus.Publisher, logger *slog.Logger) (eventbus.Subscriber, func() error, error) {
	switch provider {
	case "gochannel":
		bus, ok := publisher.(*eventbus.WatermillEventBus)
		if !ok {
			return nil, nil, fmt.Errorf("%w: gochannel events are only visible to the process running the flow", ErrUnsupportedEventBus)
		}

		return bus, func() error { return nil }, nil
	case "kafka":
		brokers, err := kafka.BrokersFromEnv()
		if err != nil {
			return nil, nil, err
		}

		group := "flowrun-watch-" + strings.ReplaceAll(uuid.NewString(), "-", "")

		sub, err := kafka.CreateSubscriber(watermill.NewSlogLogger(logger), group, brokers)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
		}

		bus := eventbus.NewWatermillEventBus(nil, sub)

		return bus, bus.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: cannot follow events on %q", ErrUnsupportedEventBus, provider)
	}
}
