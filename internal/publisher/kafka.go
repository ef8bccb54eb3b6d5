package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	appconfig "aggticker/config"
	"aggticker/internal/codec"
	"aggticker/logger"
)

const (
	headerMessageID   = "message-id"
	headerContentType = "content-type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes payloads through a single writer, routing each message by its topic.
type Kafka struct {
	writer messageWriter
	log    *logger.Log
}

func NewKafka(cfg appconfig.BusConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	k := &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
			RequiredAcks:           kafka.RequireOne,
		},
		log: logger.GetLogger(),
	}

	k.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": strings.Join(cfg.Brokers, ","),
	}).Info("kafka publisher initialized")
	return k, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := newMessage(topic, payload)
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return &PublishError{Topic: topic, Err: err}
	}

	k.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"topic":      topic,
		"message_id": string(msg.Headers[0].Value),
		"bytes":      len(payload),
	}).Debug("message written to kafka")
	return nil
}

func (k *Kafka) Close() error {
	k.log.WithComponent("kafka_publisher").Info("closing kafka publisher")
	return k.writer.Close()
}

func newMessage(topic string, payload []byte) kafka.Message {
	return kafka.Message{
		Topic: topic,
		Key:   []byte(strings.TrimPrefix(topic, TopicPrefix)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: headerMessageID, Value: []byte(uuid.NewString())},
			{Key: headerContentType, Value: []byte(codec.ContentType)},
		},
	}
}
