// Package validation checks event payloads against struct-tag schemas using
// go-playground/validator and reports every violated constraint in field
// order.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "fnkit/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the shared validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// report json names instead of Go field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Schema validates a raw payload.
type Schema interface {
	// Name identifies the schema in logs and generated documents.
	Name() string
	// Check returns every violation found in data, or nil when data is valid.
	Check(data []byte) []apperrors.Violation
}

type structSchema[T any] struct {
	name string
}

// For returns a Schema that decodes JSON into T and validates its
// `validate` tags.
func For[T any]() Schema {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := "unknown"
	if t != nil {
		name = t.Name()
	}
	return structSchema[T]{name: name}
}

func (s structSchema[T]) Name() string { return s.name }

func (s structSchema[T]) Check(data []byte) []apperrors.Violation {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return []apperrors.Violation{{
			Kind:    "json",
			Message: err.Error(),
		}}
	}
	return Struct(v)
}

// SchemaFunc adapts a function into a Schema.
type SchemaFunc func(data []byte) []apperrors.Violation

func (f SchemaFunc) Name() string { return "func" }

func (f SchemaFunc) Check(data []byte) []apperrors.Violation { return f(data) }

// Struct validates an already decoded value.
func Struct(v any) []apperrors.Violation {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []apperrors.Violation{{Kind: "invalid", Message: err.Error()}}
	}

	root := reflect.TypeOf(v)
	for root != nil && root.Kind() == reflect.Pointer {
		root = root.Elem()
	}

	violations := make([]apperrors.Violation, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		field := fieldPath(fe)
		violations = append(violations, violation(field, fe))
		for _, extra := range remainingErrors(root, fe) {
			violations = append(violations, violation(field, extra))
		}
	}
	return violations
}

func violation(field string, fe validator.FieldError) apperrors.Violation {
	return apperrors.Violation{
		Field:    field,
		Kind:     fe.Tag(),
		Expected: fe.Param(),
		Message:  formatMessage(fe),
	}
}

// remainingErrors checks the constraints listed after the one fe reports.
// The validator stops at the first failing tag of a field; a failed required
// still ends the check since nothing else applies to a missing value.
func remainingErrors(root reflect.Type, fe validator.FieldError) []validator.FieldError {
	if strings.HasPrefix(fe.Tag(), "required") || fe.Value() == nil {
		return nil
	}
	tag, level, ok := fieldTag(root, fe.StructNamespace())
	if !ok {
		return nil
	}

	levels := [][]string{nil}
	for _, t := range strings.Split(tag, ",") {
		switch t {
		case "dive":
			levels = append(levels, nil)
		case "keys", "endkeys":
			return nil
		default:
			levels[len(levels)-1] = append(levels[len(levels)-1], t)
		}
	}
	if level >= len(levels) {
		return nil
	}
	tags := levels[level]
	i := slices.IndexFunc(tags, func(t string) bool { return tagName(t) == fe.Tag() })
	if i < 0 {
		return nil
	}

	var errs []validator.FieldError
	for _, t := range tags[i+1:] {
		if !standalone(t) {
			continue
		}
		errs = append(errs, checkVar(fe.Value(), t)...)
	}
	return errs
}

// standalone reports whether t can be checked against a value alone.
func standalone(t string) bool {
	name := tagName(t)
	switch name {
	case "", "-", "structonly", "nostructlevel", "isdefault":
		return false
	}
	for _, prefix := range []string{"required", "excluded", "omit"} {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return !strings.Contains(name, "field")
}

func checkVar(value any, tag string) (errs []validator.FieldError) {
	defer func() {
		if recover() != nil {
			errs = nil
		}
	}()
	var fieldErrors validator.ValidationErrors
	if errors.As(getValidator().Var(value, tag), &fieldErrors) {
		return fieldErrors
	}
	return nil
}

// tagName strips parameters, keeping or-groups in the form the validator
// reports them, e.g. "min=5" becomes "min" and "hexcolor|rgb" stays whole.
func tagName(t string) string {
	parts := strings.Split(t, "|")
	for i, p := range parts {
		parts[i], _, _ = strings.Cut(p, "=")
	}
	return strings.Join(parts, "|")
}

// fieldTag finds the validate tag behind a struct namespace such as
// "Order.Items[0].SKU" and the dive level the last segment points at.
func fieldTag(root reflect.Type, ns string) (string, int, bool) {
	if root == nil || root.Kind() != reflect.Struct {
		return "", 0, false
	}
	segments := splitNamespace(ns)
	if len(segments) < 2 {
		return "", 0, false
	}

	t := root
	var tag string
	var level int
	for _, seg := range segments[1:] {
		name, indexes, _ := strings.Cut(seg, "[")
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return "", 0, false
		}
		f, ok := t.FieldByName(name)
		if !ok {
			return "", 0, false
		}
		tag = f.Tag.Get("validate")
		t = f.Type
		level = 0
		if indexes != "" {
			level = strings.Count("["+indexes, "[")
		}
		for range level {
			for t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			switch t.Kind() {
			case reflect.Slice, reflect.Array, reflect.Map:
				t = t.Elem()
			default:
				return "", 0, false
			}
		}
	}
	return tag, level, true
}

// splitNamespace splits on dots outside brackets so map keys may contain them.
func splitNamespace(ns string) []string {
	var segments []string
	depth, start := 0, 0
	for i := 0; i < len(ns); i++ {
		switch ns[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				segments = append(segments, ns[start:i])
				start = i + 1
			}
		}
	}
	return append(segments, ns[start:])
}

// Validate returns a validation error for v, or nil.
func Validate(v any) error {
	if violations := Struct(v); len(violations) > 0 {
		return apperrors.Validation(violations)
	}
	return nil
}

// fieldPath drops the root struct name from the namespace, e.g.
// "Order.items[0].sku" becomes "items[0].sku".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "alpha":
		return "must contain only letters"
	case "url":
		return "must be a valid URL"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return "is invalid"
	}
}
