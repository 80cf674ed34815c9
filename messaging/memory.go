package messaging

import (
	"context"
	"sync"

	"fnkit/health"
)

// MemoryPublisher keeps published messages in memory. It backs local runs
// and tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records msg.
func (p *MemoryPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.messages = append(p.messages, msg)
	return nil
}

// PublishBatch records every message in order.
func (p *MemoryPublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Messages returns a copy of the recorded messages.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// FailWith makes every following Publish return err. A nil err restores
// normal operation.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Reset drops the recorded messages.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

// CheckHealth always reports ok.
func (p *MemoryPublisher) CheckHealth(ctx context.Context) health.Report {
	return health.OK("memory")
}
