package messaging

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	apperrors "fnkit/errors"
	"fnkit/health"
)

// BreakerSettings configures the circuit breaker around a publisher.
type BreakerSettings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the
	// circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a trial publish.
	Timeout time.Duration
	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// breakerPublisher fails fast while its destination keeps failing.
type breakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// CircuitBreaker wraps pub so that publishing fails fast with
// SERVICE_UNAVAILABLE once MaxFailures consecutive publishes failed, until
// Timeout has passed.
func CircuitBreaker(pub Publisher, settings BreakerSettings) Publisher {
	if settings.Name == "" {
		settings.Name = "publisher"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}

	return &breakerPublisher{
		next: pub,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        settings.Name,
			MaxRequests: 1,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.MaxFailures
			},
			OnStateChange: settings.OnStateChange,
		}),
	}
}

func (b *breakerPublisher) Publish(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, msg)
	})
	return b.translate(err)
}

func (b *breakerPublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.PublishBatch(ctx, msgs)
	})
	return b.translate(err)
}

// CheckHealth reports the wrapped publisher's health, in error while the
// circuit is open.
func (b *breakerPublisher) CheckHealth(ctx context.Context) health.Report {
	state := b.cb.State()
	if state == gobreaker.StateOpen {
		report := health.Failed(b.cb.Name(), gobreaker.ErrOpenState)
		report.Details = map[string]any{"circuit": state.String()}
		return report
	}

	report := b.next.CheckHealth(ctx)
	if report.Details == nil {
		report.Details = map[string]any{}
	}
	report.Details["circuit"] = state.String()
	return report
}

// Close closes the wrapped publisher when it holds connections.
func (b *breakerPublisher) Close() error {
	if c, ok := b.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *breakerPublisher) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Application(apperrors.CodeServiceUnavailable,
			"publisher is temporarily unavailable", http.StatusServiceUnavailable).
			WithData("circuit", b.cb.Name()).
			WithCause(err)
	}
	return err
}
