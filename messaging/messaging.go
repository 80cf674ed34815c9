// Package messaging publishes application events to queues and event buses.
// Messages are serialized as {"id", "type", "data", "time"} envelopes, the
// shape handler.JSONDeserializer reads back on the consuming side.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fnkit/health"
	"fnkit/observability"
	"fnkit/observability/types"
)

// Message is one published event.
type Message struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(eventType string, data any) Message {
	return Message{
		ID:   uuid.New().String(),
		Type: eventType,
		Data: data,
		Time: time.Now().UTC(),
	}
}

// Publisher sends messages to a destination.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	PublishBatch(ctx context.Context, msgs []Message) error
	health.Checker
}

// Serializer encodes a message for the wire.
type Serializer func(msg Message) ([]byte, error)

// JSONSerializer encodes the message as a JSON envelope.
func JSONSerializer(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

type options struct {
	serializer Serializer
	provider   observability.Provider
}

// Option configures a publisher.
type Option func(*options)

// WithSerializer replaces the JSON serializer.
func WithSerializer(s Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithObservability sets the provider the publisher takes its logger and
// metrics from. Publishers are silent without one.
func WithObservability(provider observability.Provider) Option {
	return func(o *options) { o.provider = provider }
}

// instruments is the resolved serializer, logger and metrics of a publisher.
type instruments struct {
	serialize Serializer
	logger    types.Logger
	metrics   types.Metrics
}

func newInstruments(component string, opts []Option) instruments {
	o := options{serializer: JSONSerializer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = observability.NewNopProvider()
	}
	return instruments{
		serialize: o.serializer,
		logger:    o.provider.Logger(component),
		metrics:   o.provider.Metrics(component),
	}
}

// observe records the outcome of one publish call.
func (in instruments) observe(start time.Time, err error, errorType string) {
	in.metrics.RecordDuration("publish", time.Since(start).Seconds())
	if err != nil {
		in.metrics.RecordError("publish", errorType)
		return
	}
	in.metrics.RecordSuccess("publish")
}
