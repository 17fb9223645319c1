// Package kafka is a thin Producer wrapper for the jsonrelay example,
// which only ever publishes one direction (reactor -> broker) — the
// teacher's consumer half and its Message sync.Pool (built for a
// high-throughput delivery-report loop this example doesn't have) are
// dropped; see DESIGN.md.
package kafka

import (
	librdkafka "gopkg.in/confluentinc/confluent-kafka-go.v1/kafka"
)

type Option struct {
	Brokers string `yaml:"brokers" json:"brokers"`
	Topic   string `yaml:"topic" json:"topic"`
}

type Producer struct {
	topic    string
	producer *librdkafka.Producer
}

func NewProducer(option *Option) (*Producer, error) {
	prod, err := librdkafka.NewProducer(&librdkafka.ConfigMap{
		"bootstrap.servers": option.Brokers,
	})
	if err != nil {
		return nil, err
	}

	return &Producer{topic: option.Topic, producer: prod}, nil
}

// Publish fires the message at the configured topic without waiting
// for a delivery report; errors here mean "could not enqueue locally"
// (e.g. producer queue full), not "broker rejected it".
func (p *Producer) Publish(key, value []byte) error {
	return p.producer.Produce(&librdkafka.Message{
		TopicPartition: librdkafka.TopicPartition{Topic: &p.topic, Partition: librdkafka.PartitionAny},
		Key:            key,
		Value:          value,
	}, nil)
}

func (p *Producer) Close() error {
	p.producer.Close()
	return nil
}
