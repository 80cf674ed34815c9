// Package schema generates JSON schemas for the event types a deployment
// accepts. Types are registered by name and reflected with
// invopop/jsonschema, so json and jsonschema struct tags shape the output.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"

	"github.com/invopop/jsonschema"
)

// FileSuffix is appended to the type name of every written schema file.
const FileSuffix = ".schema.json"

// Registry maps event type names to Go types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Default is the registry used by Register and the generate-schemas command.
var Default = NewRegistry()

// Register adds T to the default registry under name.
func Register[T any](name string) {
	if err := RegisterIn[T](Default, name); err != nil {
		panic(err)
	}
}

// RegisterIn adds T to r under name. Registering a name twice is an error.
func RegisterIn[T any](r *Registry, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("schema name must not be empty")
	}
	if _, dup := r.types[name]; dup {
		return fmt.Errorf("schema %s already registered", name)
	}
	r.types[name] = reflect.TypeFor[T]()
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schema reflects the schema of the named type.
func (r *Registry) Schema(name string) (*jsonschema.Schema, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("schema %s is not registered", name)
	}

	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := reflector.ReflectFromType(t)
	s.ID = jsonschema.ID(name + FileSuffix)
	s.Title = name
	return s, nil
}

// WriteAll writes <name>.schema.json for every registered type into dir,
// creating it if needed. It returns the written paths.
func (r *Registry) WriteAll(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	for _, name := range r.Names() {
		s, err := r.Schema(name)
		if err != nil {
			return written, err
		}
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to encode schema %s: %w", name, err)
		}

		path := filepath.Join(dir, name+FileSuffix)
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return written, fmt.Errorf("failed to write schema %s: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
