// Package redact filters confidential values out of payloads before they are
// written to logs or returned to clients.
package redact

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultMarker replaces the value of a sensitive key.
const DefaultMarker = "[REDACTED]"

// DefaultInternalPrefix marks keys that never leave the process.
const DefaultInternalPrefix = "_"

// DefaultKeys is the default sensitive key set. Matching ignores case and
// the characters '-' and '_'.
var DefaultKeys = []string{
	"password",
	"secret",
	"token",
	"accessToken",
	"refreshToken",
	"apiKey",
	"authorization",
	"cookie",
	"clientSecret",
}

// Redactor replaces sensitive values and drops internal-only keys.
type Redactor struct {
	keys           map[string]struct{}
	marker         string
	internalPrefix string
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithKeys replaces the sensitive key set.
func WithKeys(keys ...string) Option {
	return func(r *Redactor) {
		r.keys = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			r.keys[normalize(k)] = struct{}{}
		}
	}
}

// WithMarker sets the replacement marker.
func WithMarker(marker string) Option {
	return func(r *Redactor) { r.marker = marker }
}

// WithInternalPrefix sets the internal-only prefix. An empty prefix disables
// dropping.
func WithInternalPrefix(prefix string) Option {
	return func(r *Redactor) { r.internalPrefix = prefix }
}

// New creates a Redactor with the default key set, marker and prefix unless
// overridden by options.
func New(opts ...Option) *Redactor {
	r := &Redactor{
		marker:         DefaultMarker,
		internalPrefix: DefaultInternalPrefix,
	}
	WithKeys(DefaultKeys...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsSensitive reports whether key belongs to the sensitive set.
func (r *Redactor) IsSensitive(key string) bool {
	_, ok := r.keys[normalize(key)]
	return ok
}

// IsInternal reports whether key is internal-only.
func (r *Redactor) IsInternal(key string) bool {
	return r.internalPrefix != "" && strings.HasPrefix(key, r.internalPrefix)
}

// Map returns a redacted copy of m. Nested maps and slices are walked; m is
// not modified.
func (r *Redactor) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.IsInternal(k) {
			continue
		}
		if r.IsSensitive(k) {
			out[k] = r.marker
			continue
		}
		out[k] = r.value(v)
	}
	return out
}

// Value redacts an arbitrary value. Structs are converted through their JSON
// form so struct tags decide the key names.
func (r *Redactor) Value(v any) any {
	return r.value(v)
}

// Marshal redacts v and encodes it as JSON.
func (r *Redactor) Marshal(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r.value(generic))
}

func (r *Redactor) value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return r.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.value(item)
		}
		return out
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return r.Map(m)
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	default:
		generic, err := toGeneric(t)
		if err != nil {
			return t
		}
		switch generic.(type) {
		case map[string]any, []any:
			return r.value(generic)
		}
		return generic
	}
}

func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer("-", "", "_", "").Replace(key)
}
