package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fnkit/health"
	"fnkit/observability/types"
)

// KafkaWriter is the subset of *kafka.Writer used by KafkaPublisher.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.WriterStats
	Close() error
}

// NewKafkaWriter creates a writer for topic that waits for every in-sync
// replica. Messages with the same key land on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// KafkaPublisher writes messages to one Kafka topic. The message id is the
// record key; the id and type are also sent as headers.
type KafkaPublisher struct {
	writer  KafkaWriter
	brokers []string
	topic   string
	dial    func(ctx context.Context, addr string) error
	instruments
}

// NewKafkaPublisher creates a publisher over writer. brokers are dialled by
// CheckHealth.
func NewKafkaPublisher(writer KafkaWriter, brokers []string, topic string, opts ...Option) *KafkaPublisher {
	return &KafkaPublisher{
		writer:      writer,
		brokers:     brokers,
		topic:       topic,
		dial:        dialBroker,
		instruments: newInstruments("messaging.kafka", opts),
	}
}

// Publish writes a single message.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) (err error) {
	start := time.Now()
	defer func() { p.observe(start, err, "write_failed") }()

	return p.write(ctx, []Message{msg})
}

// PublishBatch writes every message in one call; the writer batches them
// per partition.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, msgs []Message) (err error) {
	if len(msgs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { p.observe(start, err, "write_failed") }()

	return p.write(ctx, msgs)
}

func (p *KafkaPublisher) write(ctx context.Context, msgs []Message) error {
	records := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		value, err := p.serialize(msg)
		if err != nil {
			return fmt.Errorf("failed to serialize message %s: %w", msg.ID, err)
		}
		records = append(records, kafka.Message{
			Key:   []byte(msg.ID),
			Value: value,
			Time:  msg.Time,
			Headers: []kafka.Header{
				{Key: "message_id", Value: []byte(msg.ID)},
				{Key: "message_type", Value: []byte(msg.Type)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, records...); err != nil {
		var writeErrs kafka.WriteErrors
		if errors.As(err, &writeErrs) {
			for i, werr := range writeErrs {
				if werr != nil && i < len(msgs) {
					p.logger.Error(ctx, "Failed to write message", werr, types.Fields{
						"message_id": msgs[i].ID,
						"type":       msgs[i].Type,
						"topic":      p.topic,
					})
				}
			}
			return fmt.Errorf("%d messages failed to publish to Kafka: %w", writeErrs.Count(), err)
		}
		return fmt.Errorf("failed to publish messages to Kafka: %w", err)
	}

	p.logger.Debug(ctx, "Messages published to Kafka", types.Fields{
		"count": len(records),
		"topic": p.topic,
	})
	return nil
}

// CheckHealth dials the first broker and reports the writer's error count.
func (p *KafkaPublisher) CheckHealth(ctx context.Context) health.Report {
	const name = "kafka"

	if len(p.brokers) == 0 {
		return health.Failed(name, errors.New("no brokers configured"))
	}
	if err := p.dial(ctx, p.brokers[0]); err != nil {
		return health.Failed(name, fmt.Errorf("broker %s is not reachable: %w", p.brokers[0], err))
	}

	stats := p.writer.Stats()
	report := health.OK(name)
	report.Details = map[string]any{
		"topic":  p.topic,
		"writes": stats.Writes,
		"errors": stats.Errors,
	}
	return report
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func dialBroker(ctx context.Context, addr string) error {
	conn, err := (&kafka.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
