package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"copytrade/internal/domain"
)

// WriteMessages is synchronous, so each call waits up to one batch timeout
const writerBatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CopyResultPublisher publishes per-follower copy results to Kafka
type CopyResultPublisher struct {
	writer messageWriter
	Topic  string
}

var _ domain.EventPublisher = (*CopyResultPublisher)(nil)

// copyResultMessage is the wire shape consumers read
type copyResultMessage struct {
	BrokerID    uuid.UUID         `json:"broker_id"`
	Result      domain.CopyResult `json:"result"`
	PublishedAt time.Time         `json:"published_at"`
}

// NewCopyResultPublisher creates a new Kafka publisher for copy results
func NewCopyResultPublisher(brokers []string, topic string) *CopyResultPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           writerBatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return &CopyResultPublisher{writer: writer, Topic: topic}
}

// PublishCopyResult sends one result keyed by broker so a broker's results stay ordered
func (p *CopyResultPublisher) PublishCopyResult(ctx context.Context, brokerID uuid.UUID, result domain.CopyResult) error {
	value, err := json.Marshal(copyResultMessage{
		BrokerID:    brokerID,
		Result:      result,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal copy result: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(brokerID.String()),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying Kafka writer
func (p *CopyResultPublisher) Close() error {
	return p.writer.Close()
}
