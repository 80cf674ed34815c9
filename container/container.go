// Package container provides the request-scoped service container. A
// Registry of named factories is built once at startup; every invocation
// gets its own Container whose services are constructed on first use and
// memoized for the rest of that invocation only.
package container

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Factory constructs one service. It may resolve other services from c,
// passing on the ctx it was given so dependency cycles are detected.
type Factory func(ctx context.Context, c *Container) (any, error)

// Registry is the immutable set of factories known to a deployment.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory. Registering the same name twice replaces
// the earlier factory. Register is meant for startup only; a Registry must
// not be modified once containers are being created from it.
func (r *Registry) Register(name string, factory Factory) *Registry {
	r.factories[name] = factory
	return r
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a fresh container for one invocation.
func (r *Registry) New() *Container {
	return &Container{
		registry: r,
		entries:  make(map[string]*entry),
	}
}

// Container holds the services resolved during one invocation.
type Container struct {
	registry *Registry
	mu       sync.Mutex
	entries  map[string]*entry
}

type entry struct {
	once  sync.Once
	value any
	err   error
}

// ErrUnknownService is returned when no factory is registered for a name.
type ErrUnknownService struct {
	Name string
}

func (e *ErrUnknownService) Error() string {
	return fmt.Sprintf("service %q is not registered", e.Name)
}

// ErrDependencyCycle is returned when a factory, directly or through other
// factories, resolves the service it is constructing.
type ErrDependencyCycle struct {
	Path []string
}

func (e *ErrDependencyCycle) Error() string {
	return fmt.Sprintf("service dependency cycle: %s", strings.Join(e.Path, " -> "))
}

type resolvingKey struct{}

// resolving returns the names whose factories are running on ctx's call
// chain, outermost first.
func resolving(ctx context.Context) []string {
	chain, _ := ctx.Value(resolvingKey{}).([]string)
	return chain
}

// Resolve returns the named service, running its factory on first use. The
// factory's result, including an error, is memoized so it runs at most once
// per container. A name already being resolved on ctx's call chain fails
// with ErrDependencyCycle instead of waiting on itself.
func (c *Container) Resolve(ctx context.Context, name string) (any, error) {
	factory, ok := c.registry.factories[name]
	if !ok {
		return nil, &ErrUnknownService{Name: name}
	}

	chain := resolving(ctx)
	if slices.Contains(chain, name) {
		path := append(slices.Clone(chain), name)
		return nil, &ErrDependencyCycle{Path: path[slices.Index(path, name):]}
	}

	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		e = &entry{}
		c.entries[name] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		inner := context.WithValue(ctx, resolvingKey{}, append(slices.Clone(chain), name))
		e.value, e.err = factory(inner, c)
		if e.err != nil {
			e.err = fmt.Errorf("failed to construct service %q: %w", name, e.err)
		}
	})
	return e.value, e.err
}

// Resolved reports whether the named service has been constructed.
func (c *Container) Resolved(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[name]
	return ok
}

// Get resolves a service and asserts its type.
func Get[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T
	if c == nil {
		return zero, fmt.Errorf("no container attached; cannot resolve %q", name)
	}
	v, err := c.Resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T, want %T", name, v, zero)
	}
	return typed, nil
}

// Value wraps a ready-made instance as a factory.
func Value(v any) Factory {
	return func(context.Context, *Container) (any, error) {
		return v, nil
	}
}
