// Package repository provides a typed key-value repository over pluggable
// byte backends. Values are stored as JSON, so every Get returns a fresh copy
// that is equal by value to what was Set but never the same reference.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"fnkit/health"
	"fnkit/observability"
	"fnkit/observability/types"
)

// ErrNotFound is returned by a Backend when a key is absent.
var ErrNotFound = errors.New("key not found")

// Backend stores raw values by key.
type Backend interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for an absent key.
	Delete(ctx context.Context, key string) error
	// Keys returns the live keys in sorted order.
	Keys(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	health.Checker
}

// Entry is one key-value pair.
type Entry[V any] struct {
	Key   string
	Value V
}

// Repository is a typed view over a Backend.
type Repository[V any] struct {
	backend Backend
	logger  types.Logger
	metrics types.Metrics
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	provider observability.Provider
}

// WithObservability sets the provider the repository takes its logger and
// metrics from.
func WithObservability(provider observability.Provider) Option {
	return func(o *options) { o.provider = provider }
}

// New creates a repository of V values stored in backend.
func New[V any](backend Backend, opts ...Option) *Repository[V] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = observability.NewNopProvider()
	}
	return &Repository[V]{
		backend: backend,
		logger:  o.provider.Logger("repository"),
		metrics: o.provider.Metrics("repository"),
	}
}

// Get returns the value stored under key. The boolean is false when the key
// is absent.
func (r *Repository[V]) Get(ctx context.Context, key string) (value V, found bool, err error) {
	defer r.observe(ctx, "get", time.Now(), &err)

	raw, err := r.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to get %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores a copy of value under key.
func (r *Repository[V]) Set(ctx context.Context, key string, value V) (err error) {
	defer r.observe(ctx, "set", time.Now(), &err)

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	if err := r.backend.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *Repository[V]) Delete(ctx context.Context, key string) (err error) {
	defer r.observe(ctx, "delete", time.Now(), &err)

	if err := r.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Size returns the number of live keys.
func (r *Repository[V]) Size(ctx context.Context) (int, error) {
	return r.backend.Len(ctx)
}

// Entries lists every entry. Keys are read up front; each value is read only
// when the sequence reaches it, and keys deleted in the meantime are skipped.
// Iteration stops after the first error.
func (r *Repository[V]) Entries(ctx context.Context) iter.Seq2[Entry[V], error] {
	return func(yield func(Entry[V], error) bool) {
		keys, err := r.backend.Keys(ctx)
		if err != nil {
			yield(Entry[V]{}, fmt.Errorf("failed to list keys: %w", err))
			return
		}
		for _, key := range keys {
			value, found, err := r.Get(ctx, key)
			if err != nil {
				yield(Entry[V]{Key: key}, err)
				return
			}
			if !found {
				continue
			}
			if !yield(Entry[V]{Key: key, Value: value}, nil) {
				return
			}
		}
	}
}

// Clear removes every key.
func (r *Repository[V]) Clear(ctx context.Context) (err error) {
	defer r.observe(ctx, "clear", time.Now(), &err)
	return r.backend.Clear(ctx)
}

// CheckHealth reports the backend's health.
func (r *Repository[V]) CheckHealth(ctx context.Context) health.Report {
	return r.backend.CheckHealth(ctx)
}

func (r *Repository[V]) observe(ctx context.Context, op string, start time.Time, errp *error) {
	r.metrics.RecordDuration(op, time.Since(start).Seconds())
	if *errp != nil {
		r.metrics.RecordError(op, "backend")
		r.logger.Error(ctx, "repository operation failed", *errp, types.Fields{"operation": op})
		return
	}
	r.metrics.RecordSuccess(op)
}
