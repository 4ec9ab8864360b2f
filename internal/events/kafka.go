package events

import (
	"encoding/json"
	"strings"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaSink mirrors every domain event onto Kafka so downstream consumers
// (analytics, external notification workers) can subscribe without touching
// the core. It is registered as a regular bus handler; publish failures are
// logged and never surfaced to the transition that emitted the event.
type KafkaSink struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

// NewKafkaSink connects a sync producer to the given comma-separated brokers.
func NewKafkaSink(brokers string, logger *logrus.Logger) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), config)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{producer: producer, logger: logger}, nil
}

func (k *KafkaSink) Name() string { return "kafka-sink" }

func (k *KafkaSink) Handle(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		k.logger.WithError(err).Error("failed to marshal event for Kafka")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: string(evt.Type),
		Key:   sarama.StringEncoder(evt.Key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		k.logger.WithError(err).WithField("type", evt.Type).Error("failed to publish event to Kafka")
		return
	}

	k.logger.WithFields(logrus.Fields{
		"topic":     evt.Type,
		"partition": partition,
		"offset":    offset,
		"key":       evt.Key,
	}).Debug("event published to Kafka")
}

func (k *KafkaSink) Close() error { return k.producer.Close() }
