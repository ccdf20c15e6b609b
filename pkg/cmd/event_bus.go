package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/gragraf/pkg/channels/gochannel"
	"github.com/dukex/gragraf/pkg/channels/kafka"
	"github.com/dukex/gragraf/pkg/eventbus"
)

const kafkaConsumerGroup = "gragraf"

// NewEventBus creates the session update bus for provider ("gochannel" or "kafka").
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pubSub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pubSub, pubSub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, kafkaConsumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
