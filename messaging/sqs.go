package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"fnkit/health"
	"fnkit/observability/types"
)

// SQS has a limit of 10 messages per batch
const sqsMaxBatchSize = 10

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSPublisher sends messages to one SQS queue. The message id and type are
// carried as string message attributes.
type SQSPublisher struct {
	client    SQSAPI
	queueName string
	instruments

	mu       sync.Mutex
	queueURL string
}

// NewSQSPublisher creates a publisher for the queue identified by queueURL,
// or by queueName when queueURL is empty. The name is resolved on first use.
func NewSQSPublisher(client SQSAPI, queueURL, queueName string, opts ...Option) *SQSPublisher {
	return &SQSPublisher{
		client:      client,
		queueURL:    queueURL,
		queueName:   queueName,
		instruments: newInstruments("messaging.sqs", opts),
	}
}

func (p *SQSPublisher) resolveQueueURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queueURL != "" {
		return p.queueURL, nil
	}

	result, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(p.queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", p.queueName, err)
	}

	p.queueURL = aws.ToString(result.QueueUrl)
	return p.queueURL, nil
}

// Publish sends one message.
func (p *SQSPublisher) Publish(ctx context.Context, msg Message) (err error) {
	start := time.Now()
	errorType := ""
	defer func() { p.observe(start, err, errorType) }()

	queueURL, err := p.resolveQueueURL(ctx)
	if err != nil {
		errorType = "queue_url_failed"
		p.logger.Error(ctx, "failed to get queue URL", err, types.Fields{"queue": p.queueName})
		return err
	}

	body, err := p.serialize(msg)
	if err != nil {
		errorType = "marshal_failed"
		return fmt.Errorf("failed to serialize message %s: %w", msg.ID, err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: sqsAttributes(msg),
	})
	if err != nil {
		errorType = "send_failed"
		p.logger.Error(ctx, "failed to send message", err, types.Fields{
			"message_id": msg.ID,
			"type":       msg.Type,
		})
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.metrics.RecordPayloadSize(msg.Type, int64(len(body)))
	p.logger.Debug(ctx, "message sent", types.Fields{
		"message_id": msg.ID,
		"type":       msg.Type,
		"size":       len(body),
	})
	return nil
}

// PublishBatch sends messages in chunks of ten. It stops at the first chunk
// with a failed entry.
func (p *SQSPublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	queueURL, err := p.resolveQueueURL(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < len(msgs); i += sqsMaxBatchSize {
		end := min(i+sqsMaxBatchSize, len(msgs))
		batch := msgs[i:end]

		entries := make([]sqstypes.SendMessageBatchRequestEntry, len(batch))
		for j, msg := range batch {
			body, err := p.serialize(msg)
			if err != nil {
				return fmt.Errorf("failed to serialize message %s: %w", msg.ID, err)
			}
			entries[j] = sqstypes.SendMessageBatchRequestEntry{
				Id:                aws.String(strconv.Itoa(j)),
				MessageBody:       aws.String(string(body)),
				MessageAttributes: sqsAttributes(msg),
			}
		}

		out, err := p.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  entries,
		})
		if err != nil {
			p.metrics.RecordError("publish_batch", "send_failed")
			return fmt.Errorf("failed to send batch: %w", err)
		}
		if len(out.Failed) > 0 {
			p.metrics.RecordError("publish_batch", "entries_failed")
			first := out.Failed[0]
			return fmt.Errorf("%d of %d messages failed to send: %s: %s",
				len(out.Failed), len(entries), aws.ToString(first.Code), aws.ToString(first.Message))
		}
		p.metrics.RecordSuccess("publish_batch")
	}
	return nil
}

// CheckHealth reads the queue's attributes.
func (p *SQSPublisher) CheckHealth(ctx context.Context) health.Report {
	const name = "sqs"

	queueURL, err := p.resolveQueueURL(ctx)
	if err != nil {
		return health.Failed(name, err)
	}

	out, err := p.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return health.Failed(name, err)
	}

	report := health.OK(name)
	report.Details = map[string]any{"queue_url": queueURL}
	if depth, ok := out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]; ok {
		report.Details["approximate_messages"] = depth
	}
	return report
}

// sqsAttributes carries the id and type as string attributes. SQS rejects
// empty attribute values, so empty fields are left out.
func sqsAttributes(msg Message) map[string]sqstypes.MessageAttributeValue {
	attrs := make(map[string]sqstypes.MessageAttributeValue, 2)
	if msg.ID != "" {
		attrs["id"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.ID)}
	}
	if msg.Type != "" {
		attrs["type"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.Type)}
	}
	return attrs
}
