package handler

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"fnkit/container"
	apperrors "fnkit/errors"
	"fnkit/principal"
)

// Event sources set by the adapters.
const (
	SourceAPIGateway   = "apigateway"
	SourceAPIGatewayV2 = "apigatewayv2"
	SourceSQS          = "sqs"
	SourceAzureHTTP    = "azure-http"
	SourceAzureQueue   = "azure-queue"
	SourceHTTP         = "http"
)

// Invocation is the normalized execution context of one provider-delivered
// event. It is created by an adapter, shared by reference through the
// middleware chain, and discarded when the invocation resolves.
type Invocation struct {
	// Event is the provider-agnostic payload.
	Event *Event

	// Provider carries provider metadata through untouched.
	Provider ProviderContext

	// Services is the request-scoped container attached by WithContainer.
	Services *container.Container

	mu   sync.Mutex
	next map[nextKey]struct{}
}

// NewInvocation creates an invocation for event. A nil event is replaced by
// an empty one.
func NewInvocation(event *Event, provider ProviderContext) *Invocation {
	if event == nil {
		event = &Event{}
	}
	return &Invocation{Event: event, Provider: provider}
}

// child creates the invocation of one batch record. It shares the provider
// context and services of its parent.
func (inv *Invocation) child(event *Event) *Invocation {
	return &Invocation{
		Event:    event,
		Provider: inv.Provider,
		Services: inv.Services,
	}
}

// markNext records that the next function at key was called and reports
// whether this was the first call.
func (inv *Invocation) markNext(key nextKey) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.next == nil {
		inv.next = make(map[nextKey]struct{})
	}
	if _, called := inv.next[key]; called {
		return false
	}
	inv.next[key] = struct{}{}
	return true
}

// ProviderContext is opaque provider metadata. The deadline is informative
// only; the chain never enforces it.
type ProviderContext struct {
	RequestID    string
	FunctionName string
	Platform     string
	Deadline     time.Time
	// Raw is the provider's own context value, e.g. *lambdacontext.LambdaContext.
	Raw any
}

// Remaining returns the time left before the deadline, or zero when no
// deadline is known.
func (p ProviderContext) Remaining() time.Duration {
	if p.Deadline.IsZero() {
		return 0
	}
	return time.Until(p.Deadline)
}

// Event is the normalized input payload.
type Event struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Type   string `json:"type,omitempty"`

	// HTTP fields; empty for queue deliveries
	Method         string            `json:"method,omitempty"`
	Path           string            `json:"path,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"` // lower-cased keys
	Query          map[string]string `json:"query,omitempty"`
	PathParameters map[string]string `json:"pathParameters,omitempty"`

	Body     json.RawMessage   `json:"body,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Authorizer holds provider-supplied claims, nil when the request was
	// not authorized upstream.
	Authorizer map[string]any `json:"-"`

	// Records holds batch deliveries.
	Records []Record `json:"records,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	principal func() (*principal.Principal, error)
}

// Record is one entry of a batch delivery.
type Record struct {
	ID         string            `json:"id"`
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Header returns a header value, ignoring case.
func (e *Event) Header(name string) string {
	return e.Headers[strings.ToLower(name)]
}

// Unmarshal decodes the body into v.
func (e *Event) Unmarshal(v any) error {
	if len(e.Body) == 0 {
		return apperrors.Application(apperrors.CodeMalformedEvent, "event body is empty", 400)
	}
	if err := json.Unmarshal(e.Body, v); err != nil {
		return apperrors.Application(apperrors.CodeMalformedEvent, "event body is not valid JSON", 400).WithCause(err)
	}
	return nil
}

// SetMetadata adds or updates metadata on the event.
func (e *Event) SetMetadata(key, value string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
}

// Principal returns the authenticated principal. Resolution is deferred
// until the first call and memoized for the rest of the invocation. Without
// a principal middleware in the chain it fails with PRINCIPAL_UNAVAILABLE.
func (e *Event) Principal() (*principal.Principal, error) {
	if e.principal == nil {
		return nil, apperrors.Application(apperrors.CodePrincipalUnavailable,
			"no principal middleware is registered", 500)
	}
	return e.principal()
}

// SetPrincipalResolver installs the lazy principal accessor.
func (e *Event) SetPrincipalResolver(resolve func() (*principal.Principal, error)) {
	e.principal = sync.OnceValues(resolve)
}
