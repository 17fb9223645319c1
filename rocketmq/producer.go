// Package rocketmq is a thin Producer wrapper for the jsonrelay
// example's alternate broker backend. Grounded on the teacher's
// rocket-mq/producer.go, trimmed to the one-way send the relay uses —
// SendSync/SendAsync and the consumer half it paired with are dropped
// (see DESIGN.md). Publish uses SendOneWay, so it reports no broker
// acknowledgement.
package rocketmq

import (
	"context"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

type Option struct {
	NameServer []string `yaml:"name_server" json:"name_server"`
	GroupName  string   `yaml:"group_name" json:"group_name"`
	Topic      string   `yaml:"topic" json:"topic"`
}

type Producer struct {
	topic      string
	connection rocketmq.Producer
}

func NewProducer(option *Option) (*Producer, error) {
	conn, err := rocketmq.NewProducer(
		producer.WithNameServer(option.NameServer),
		producer.WithGroupName(option.GroupName),
	)
	if err != nil {
		return nil, err
	}

	if err := conn.Start(); err != nil {
		return nil, err
	}

	return &Producer{topic: option.Topic, connection: conn}, nil
}

func (p *Producer) Publish(key, value []byte) error {
	msg := primitive.NewMessage(p.topic, value)
	if len(key) > 0 {
		msg.WithKeys([]string{string(key)})
	}
	return p.connection.SendOneWay(context.Background(), msg)
}

func (p *Producer) Close() error {
	return p.connection.Shutdown()
}
