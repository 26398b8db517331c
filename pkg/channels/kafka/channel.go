// Package kafka provides the Kafka event bus transport.
package kafka

import (
	"errors"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

var ErrNoBrokers = errors.New("kafka brokers are not configured")

// Config selects the brokers and the subscriber's consumer group. Without a
// group every subscriber reads all partitions from the newest offset.
type Config struct {
	Brokers       []string
	ConsumerGroup string
}

// CreateChannel connects a run-keyed publisher and a subscriber to the brokers.
func CreateChannel(logger watermill.LoggerAdapter, cfg Config) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(cfg.Brokers) == 0 || cfg.Brokers[0] == "" {
		return nil, nil, ErrNoBrokers
	}

	publisher, err := newPublisher(logger, cfg.Brokers)
	if err != nil {
		return nil, nil, err
	}

	subscriber, err := newSubscriber(logger, cfg)
	if err != nil {
		_ = publisher.Close()

		return nil, nil, err
	}

	return publisher, subscriber, nil
}

func newPublisher(logger watermill.LoggerAdapter, brokers []string) (*kafka.Publisher, error) {
	saramaConfig := kafka.DefaultSaramaSyncPublisherConfig()
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	return kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.NewWithPartitioningMarshaler(partitionKey),
			OverwriteSaramaConfig: saramaConfig,
			OTELEnabled:           true,
		},
		logger,
	)
}

func newSubscriber(logger watermill.LoggerAdapter, cfg Config) (*kafka.Subscriber, error) {
	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
			ConsumerGroup:         cfg.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
}
