package outbox

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/imrishuroy/go-loyalty-ledger/internal/aws"
)

// MessageSender is satisfied by aws.Publisher.
type MessageSender interface {
	Send(ctx context.Context, m aws.QueueMessage) error
}

// SQSSink hands discount requests to the discount-management queue.
type SQSSink struct {
	sender MessageSender
}

func NewSQSSink(sender MessageSender) *SQSSink {
	return &SQSSink{sender: sender}
}

// Publish groups messages by aggregate so requests for one reward stay
// ordered on FIFO queues. The outbox id doubles as the dedup id.
func (s *SQSSink) Publish(ctx context.Context, m Message) error {
	return s.sender.Send(ctx, aws.QueueMessage{
		Body:    string(m.Payload),
		GroupID: m.AggregateID,
		DedupID: m.ID,
		Attributes: map[string]string{
			"kind":         string(m.Kind),
			"aggregate_id": m.AggregateID,
			"outbox_id":    m.ID,
		},
	})
}

// KafkaSink streams audit events to a topic, keyed by aggregate so events for
// one customer stay ordered within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// NewKafkaProducer creates a SyncProducer that waits for all in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func (s *KafkaSink) Publish(ctx context.Context, m Message) error {
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(m.AggregateID),
		Value: sarama.ByteEncoder(m.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(m.Kind)},
			{Key: []byte("outbox_id"), Value: []byte(m.ID)},
		},
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", m.ID, err)
	}
	return nil
}
