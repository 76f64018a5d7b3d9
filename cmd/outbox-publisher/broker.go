package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/kafka"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/pubsub"
)

// broker delivers one encoded envelope to a topic. Both Pub/Sub and Kafka
// satisfy it so the publish loop stays transport agnostic.
type broker interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic, key string, value []byte, attributes map[string]string) error
	Close() error
}

func newBroker(ctx context.Context, cfg *config.Config, logg *logger.Logger) (broker, string, error) {
	switch kind := cfg.Eventing.BrokerKind(); kind {
	case config.BrokerKafka:
		writer, err := kafka.NewWriter(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, kind, fmt.Errorf("bootstrap kafka: %w", err)
		}
		return writer, kind, nil
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, kind, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		return newPubSubBroker(client), kind, nil
	default:
		return nil, kind, fmt.Errorf("unsupported broker %q", kind)
	}
}

type pubSubClient interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic, orderingKey string, data []byte, attrs map[string]string) error
	Close() error
}

// pubSubBroker orders messages by aggregate id and also carries the id as a
// partition_key attribute for subscribers that filter on it.
type pubSubBroker struct {
	client pubSubClient
}

func newPubSubBroker(client pubSubClient) *pubSubBroker {
	return &pubSubBroker{client: client}
}

func (b *pubSubBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

func (b *pubSubBroker) Publish(ctx context.Context, topic, key string, value []byte, attributes map[string]string) error {
	attrs := make(map[string]string, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	if key != "" {
		attrs["partition_key"] = key
	}
	err := b.client.Publish(ctx, topic, key, value, attrs)
	if errors.Is(err, pubsub.ErrUnknownTopic) {
		return errTopicNotConfigured
	}
	return err
}

func (b *pubSubBroker) Close() error {
	return b.client.Close()
}

var errTopicNotConfigured = errors.New("publisher not configured for topic")
