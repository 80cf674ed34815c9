package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"fnkit/health"
	"fnkit/observability/types"
)

// EventBridge limits to 10 events per PutEvents call
const eventBridgeMaxBatchSize = 10

// EventBridgeAPI is the subset of the EventBridge client used by
// EventBridgePublisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
	DescribeEventBus(ctx context.Context, params *eventbridge.DescribeEventBusInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DescribeEventBusOutput, error)
}

// EventBridgePublisher puts messages on an event bus. The message type
// becomes the detail-type and the serialized message the detail.
type EventBridgePublisher struct {
	client       EventBridgeAPI
	eventBusName string
	source       string
	instruments
}

// NewEventBridgePublisher creates a new EventBridge publisher
func NewEventBridgePublisher(client EventBridgeAPI, eventBusName, source string, opts ...Option) *EventBridgePublisher {
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		instruments:  newInstruments("messaging.eventbridge", opts),
	}
}

// Publish sends a single event to EventBridge
func (p *EventBridgePublisher) Publish(ctx context.Context, msg Message) (err error) {
	start := time.Now()
	defer func() { p.observe(start, err, "put_failed") }()

	return p.put(ctx, []Message{msg})
}

// PublishBatch sends multiple events to EventBridge
func (p *EventBridgePublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	for i := 0; i < len(msgs); i += eventBridgeMaxBatchSize {
		end := min(i+eventBridgeMaxBatchSize, len(msgs))
		if err := p.put(ctx, msgs[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// put publishes a batch of events (max 10)
func (p *EventBridgePublisher) put(ctx context.Context, msgs []Message) error {
	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(msgs))
	for _, msg := range msgs {
		detail, err := p.serialize(msg)
		if err != nil {
			return fmt.Errorf("failed to serialize message %s: %w", msg.ID, err)
		}

		entry := ebtypes.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(msg.Type),
			Detail:       aws.String(string(detail)),
		}
		if !msg.Time.IsZero() {
			entry.Time = aws.Time(msg.Time)
		}
		entries = append(entries, entry)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil && i < len(msgs) {
				p.logger.Error(ctx, "Failed to publish event", nil, types.Fields{
					"message_id":    msgs[i].ID,
					"type":          msgs[i].Type,
					"error_code":    aws.ToString(entry.ErrorCode),
					"error_message": aws.ToString(entry.ErrorMessage),
				})
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug(ctx, "Events published to EventBridge", types.Fields{
		"count":     len(entries),
		"event_bus": p.eventBusName,
	})
	return nil
}

// CheckHealth describes the event bus.
func (p *EventBridgePublisher) CheckHealth(ctx context.Context) health.Report {
	const name = "eventbridge"

	out, err := p.client.DescribeEventBus(ctx, &eventbridge.DescribeEventBusInput{
		Name: aws.String(p.eventBusName),
	})
	if err != nil {
		return health.Failed(name, err)
	}

	report := health.OK(name)
	report.Details = map[string]any{"event_bus_arn": aws.ToString(out.Arn)}
	return report
}
