package mq

import (
	"mobileshop/internal/config"

	"github.com/IBM/sarama"
)

// Producer is the thin publishing seam the outbox sender depends on; tests
// substitute an in-memory recorder.
type Producer interface {
	Send(topic, key, value string) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
}

// NewProducer builds a synchronous Kafka producer that waits for all
// replicas before acknowledging.
func NewProducer(cfg *config.KafkaConfig) (Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, err
	}

	return &kafkaProducer{producer: producer}, nil
}

func (p *kafkaProducer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *kafkaProducer) Close() error {
	return p.producer.Close()
}
