package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fnkit/config"
	apperrors "fnkit/errors"
	"fnkit/health"
	"fnkit/observability"
	"fnkit/observability/mocks"
	"fnkit/observability/types"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageBatchOutput)
	return out, args.Error(1)
}

func (m *mockSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.GetQueueUrlOutput)
	return out, args.Error(1)
}

func (m *mockSQS) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.GetQueueAttributesOutput)
	return out, args.Error(1)
}

type mockEventBridge struct {
	mock.Mock
}

func (m *mockEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func (m *mockEventBridge) DescribeEventBus(ctx context.Context, params *eventbridge.DescribeEventBusInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DescribeEventBusOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.DescribeEventBusOutput)
	return out, args.Error(1)
}

func testMessage(id string) Message {
	return Message{
		ID:   id,
		Type: "order.created",
		Data: map[string]any{"order_id": id},
		Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("order.created", map[string]int{"qty": 2})

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "order.created", msg.Type)
	assert.Equal(t, time.UTC, msg.Time.Location())

	raw, err := JSONSerializer(msg)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, msg.ID, decoded["id"])
	assert.Equal(t, map[string]any{"qty": float64(2)}, decoded["data"])
}

func TestSQSPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	client := new(mockSQS)
	client.On("GetQueueUrl", ctx, mock.MatchedBy(func(in *sqs.GetQueueUrlInput) bool {
		return aws.ToString(in.QueueName) == "orders"
	})).Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs.local/orders")}, nil).Once()

	var sent *sqs.SendMessageInput
	client.On("SendMessage", ctx, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*sqs.SendMessageInput)
	}).Return(&sqs.SendMessageOutput{}, nil).Twice()

	pub := NewSQSPublisher(client, "", "orders")
	require.NoError(t, pub.Publish(ctx, testMessage("m-1")))
	require.NoError(t, pub.Publish(ctx, testMessage("m-2")))

	// queue url resolved once
	client.AssertExpectations(t)

	require.NotNil(t, sent)
	assert.Equal(t, "https://sqs.local/orders", aws.ToString(sent.QueueUrl))
	assert.Equal(t, "m-2", aws.ToString(sent.MessageAttributes["id"].StringValue))
	assert.Equal(t, "order.created", aws.ToString(sent.MessageAttributes["type"].StringValue))

	var body Message
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(sent.MessageBody)), &body))
	assert.Equal(t, "m-2", body.ID)
}

func TestSQSPublisher_PublishRecordsMetricsAndLogs(t *testing.T) {
	ctx := context.Background()
	client := new(mockSQS)
	sendErr := errors.New("throttled")
	client.On("SendMessage", ctx, mock.Anything).Return(nil, sendErr)

	logger := new(mocks.MockLogger)
	logger.On("Error", ctx, "failed to send message", sendErr, mock.Anything).Once()
	metrics := new(mocks.MockMetrics)
	metrics.On("RecordDuration", "publish", mock.Anything).Once()
	metrics.On("RecordError", "publish", "send_failed").Once()

	provider := new(mocks.MockProvider)
	provider.On("Logger", "messaging.sqs").Return(logger)
	provider.On("Metrics", "messaging.sqs").Return(metrics)

	pub := NewSQSPublisher(client, "https://sqs.local/orders", "", WithObservability(provider))
	err := pub.Publish(ctx, testMessage("m-1"))

	assert.ErrorIs(t, err, sendErr)
	logger.AssertExpectations(t)
	metrics.AssertExpectations(t)
}

func TestSQSPublisher_SkipsEmptyAttributes(t *testing.T) {
	attrs := sqsAttributes(Message{Type: "ping"})
	assert.NotContains(t, attrs, "id")
	assert.Contains(t, attrs, "type")
}

func TestSQSPublisher_PublishBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("chunks of ten", func(t *testing.T) {
		client := new(mockSQS)
		var sizes []int
		client.On("SendMessageBatch", ctx, mock.Anything).Run(func(args mock.Arguments) {
			sizes = append(sizes, len(args.Get(1).(*sqs.SendMessageBatchInput).Entries))
		}).Return(&sqs.SendMessageBatchOutput{}, nil)

		msgs := make([]Message, 23)
		for i := range msgs {
			msgs[i] = testMessage(fmt.Sprintf("m-%d", i))
		}

		pub := NewSQSPublisher(client, "https://sqs.local/orders", "")
		require.NoError(t, pub.PublishBatch(ctx, msgs))
		assert.Equal(t, []int{10, 10, 3}, sizes)
	})

	t.Run("failed entries", func(t *testing.T) {
		client := new(mockSQS)
		client.On("SendMessageBatch", ctx, mock.Anything).Return(&sqs.SendMessageBatchOutput{
			Failed: []sqstypes.BatchResultErrorEntry{{
				Id:      aws.String("1"),
				Code:    aws.String("InvalidMessageContents"),
				Message: aws.String("bad body"),
			}},
		}, nil).Once()

		pub := NewSQSPublisher(client, "https://sqs.local/orders", "")
		err := pub.PublishBatch(ctx, []Message{testMessage("a"), testMessage("b")})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 messages failed")
		assert.Contains(t, err.Error(), "InvalidMessageContents")
	})

	t.Run("empty", func(t *testing.T) {
		client := new(mockSQS)
		pub := NewSQSPublisher(client, "", "orders")
		assert.NoError(t, pub.PublishBatch(ctx, nil))
		client.AssertNotCalled(t, "GetQueueUrl", mock.Anything, mock.Anything)
	})
}

func TestSQSPublisher_CheckHealth(t *testing.T) {
	ctx := context.Background()

	client := new(mockSQS)
	client.On("GetQueueAttributes", ctx, mock.Anything).Return(&sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{"ApproximateNumberOfMessages": "4"},
	}, nil).Once()

	report := NewSQSPublisher(client, "https://sqs.local/orders", "").CheckHealth(ctx)
	assert.Equal(t, health.StatusOK, report.Status)
	assert.Equal(t, "4", report.Details["approximate_messages"])

	failing := new(mockSQS)
	failing.On("GetQueueAttributes", ctx, mock.Anything).Return(nil, errors.New("access denied"))
	report = NewSQSPublisher(failing, "https://sqs.local/orders", "").CheckHealth(ctx)
	assert.Equal(t, health.StatusError, report.Status)
	assert.Contains(t, report.Message, "access denied")
}

func TestEventBridgePublisher_Publish(t *testing.T) {
	ctx := context.Background()
	client := new(mockEventBridge)

	var input *eventbridge.PutEventsInput
	client.On("PutEvents", ctx, mock.Anything).Run(func(args mock.Arguments) {
		input = args.Get(1).(*eventbridge.PutEventsInput)
	}).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	pub := NewEventBridgePublisher(client, "orders-bus", "orders.service")
	msg := testMessage("m-1")
	require.NoError(t, pub.Publish(ctx, msg))

	require.Len(t, input.Entries, 1)
	entry := input.Entries[0]
	assert.Equal(t, "orders-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, "orders.service", aws.ToString(entry.Source))
	assert.Equal(t, "order.created", aws.ToString(entry.DetailType))
	assert.Equal(t, msg.Time, aws.ToTime(entry.Time))
	assert.Contains(t, aws.ToString(entry.Detail), `"id":"m-1"`)
}

func TestEventBridgePublisher_FailedEntries(t *testing.T) {
	ctx := context.Background()
	client := new(mockEventBridge)
	client.On("PutEvents", ctx, mock.Anything).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []ebtypes.PutEventsResultEntry{
			{EventId: aws.String("e-1")},
			{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
		},
	}, nil)

	logger := new(mocks.MockLogger)
	logger.On("Error", ctx, "Failed to publish event", nil, mock.MatchedBy(func(f types.Fields) bool {
		return f["message_id"] == "m-2" && f["error_code"] == "InternalFailure"
	})).Once()
	metrics := new(mocks.MockMetrics)
	provider := new(mocks.MockProvider)
	provider.On("Logger", "messaging.eventbridge").Return(logger)
	provider.On("Metrics", "messaging.eventbridge").Return(metrics)

	pub := NewEventBridgePublisher(client, "orders-bus", "orders.service", WithObservability(provider))
	err := pub.PublishBatch(ctx, []Message{testMessage("m-1"), testMessage("m-2")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 events failed")
	logger.AssertExpectations(t)
}

func TestEventBridgePublisher_CheckHealth(t *testing.T) {
	ctx := context.Background()
	client := new(mockEventBridge)
	client.On("DescribeEventBus", ctx, mock.Anything).Return(&eventbridge.DescribeEventBusOutput{
		Arn: aws.String("arn:aws:events:us-east-1:000000000000:event-bus/orders-bus"),
	}, nil)

	report := NewEventBridgePublisher(client, "orders-bus", "orders.service").CheckHealth(ctx)
	assert.Equal(t, health.StatusOK, report.Status)
	assert.Contains(t, report.Details["event_bus_arn"], "orders-bus")
}

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryPublisher()

	require.NoError(t, pub.PublishBatch(ctx, []Message{testMessage("a"), testMessage("b")}))
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].ID)

	// returned slice is a copy
	msgs[0].ID = "changed"
	assert.Equal(t, "a", pub.Messages()[0].ID)

	boom := errors.New("unavailable")
	pub.FailWith(boom)
	assert.ErrorIs(t, pub.Publish(ctx, testMessage("c")), boom)
	pub.FailWith(nil)

	pub.Reset()
	assert.Empty(t, pub.Messages())
	assert.Equal(t, health.StatusOK, pub.CheckHealth(ctx).Status)
}

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryPublisher()
	boom := errors.New("destination down")
	inner.FailWith(boom)

	pub := CircuitBreaker(inner, BreakerSettings{Name: "orders", MaxFailures: 2, Timeout: time.Hour})

	assert.ErrorIs(t, pub.Publish(ctx, testMessage("1")), boom)
	assert.ErrorIs(t, pub.Publish(ctx, testMessage("2")), boom)

	// circuit is open; the destination is no longer called
	inner.FailWith(nil)
	err := pub.Publish(ctx, testMessage("3"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeServiceUnavailable))
	assert.Equal(t, 503, apperrors.StatusOf(err))
	assert.Empty(t, inner.Messages())

	report := pub.CheckHealth(ctx)
	assert.Equal(t, health.StatusError, report.Status)
	assert.Equal(t, "open", report.Details["circuit"])
}

func TestCircuitBreaker_ClosedReportsInnerHealth(t *testing.T) {
	pub := CircuitBreaker(NewMemoryPublisher(), BreakerSettings{})

	require.NoError(t, pub.Publish(context.Background(), testMessage("1")))
	report := pub.CheckHealth(context.Background())
	assert.Equal(t, health.StatusOK, report.Status)
	assert.Equal(t, "closed", report.Details["circuit"])
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	provider := observability.NewNopProvider()

	tests := []struct {
		name    string
		kind    string
		breaker uint32
		check   func(t *testing.T, pub Publisher)
		wantErr bool
	}{
		{name: "memory", kind: "memory", check: func(t *testing.T, pub Publisher) {
			assert.IsType(t, &MemoryPublisher{}, pub)
		}},
		{name: "default is memory", kind: "", check: func(t *testing.T, pub Publisher) {
			assert.IsType(t, &MemoryPublisher{}, pub)
		}},
		{name: "sqs", kind: "sqs", check: func(t *testing.T, pub Publisher) {
			assert.IsType(t, &SQSPublisher{}, pub)
		}},
		{name: "eventbridge", kind: "eventbridge", check: func(t *testing.T, pub Publisher) {
			assert.IsType(t, &EventBridgePublisher{}, pub)
		}},
		{name: "with breaker", kind: "memory", breaker: 3, check: func(t *testing.T, pub Publisher) {
			assert.IsType(t, &breakerPublisher{}, pub)
		}},
		{name: "kafka", kind: "kafka", check: func(t *testing.T, pub Publisher) {
			assert.IsType(t, &KafkaPublisher{}, pub)
		}},
		{name: "unknown", kind: "nats", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.PublisherConfig{
				Kind:               tt.kind,
				QueueURL:           "https://sqs.local/orders",
				EventBusName:       "orders-bus",
				Source:             "orders.service",
				KafkaBrokers:       []string{"localhost:9092"},
				KafkaTopic:         "orders",
				BreakerMaxFailures: tt.breaker,
			}
			pub, err := New(ctx, cfg, aws.Config{Region: "us-east-1"}, provider)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, pub)
		})
	}
}
