package messaging

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"fnkit/awsclient"
	"fnkit/config"
	"fnkit/observability"
	"fnkit/observability/types"
)

// New creates the publisher selected by cfg.Kind, wrapped in a circuit
// breaker when cfg.BreakerMaxFailures is set.
func New(ctx context.Context, cfg config.PublisherConfig, awsCfg aws.Config, provider observability.Provider) (Publisher, error) {
	logger := provider.Logger("messaging.factory")
	opts := []Option{WithObservability(provider)}

	var pub Publisher
	switch cfg.Kind {
	case "sqs":
		logger.Info(ctx, "Creating SQS publisher", types.Fields{"queue": firstNonEmpty(cfg.QueueURL, cfg.QueueName)})
		pub = NewSQSPublisher(awsclient.NewSQS(awsCfg), cfg.QueueURL, cfg.QueueName, opts...)

	case "eventbridge":
		logger.Info(ctx, "Creating EventBridge publisher", types.Fields{"event_bus": cfg.EventBusName})
		pub = NewEventBridgePublisher(awsclient.NewEventBridge(awsCfg), cfg.EventBusName, cfg.Source, opts...)

	case "kafka":
		logger.Info(ctx, "Creating Kafka publisher", types.Fields{"topic": cfg.KafkaTopic, "brokers": cfg.KafkaBrokers})
		pub = NewKafkaPublisher(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), cfg.KafkaBrokers, cfg.KafkaTopic, opts...)

	case "memory", "":
		pub = NewMemoryPublisher()

	default:
		return nil, fmt.Errorf("unsupported publisher kind: %s", cfg.Kind)
	}

	if cfg.BreakerMaxFailures > 0 {
		pub = CircuitBreaker(pub, BreakerSettings{
			Name:        "publisher." + cfg.Kind,
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		})
	}
	return pub, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
