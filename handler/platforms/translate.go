// Package platforms translates provider events into handler invocations and
// pipeline results back into provider responses.
package platforms

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/redact"
)

// ToHTTP performs the final result translation. A successful response keeps
// its headers and body with a zero status read as 200. An error becomes its
// status hint and a redacted {"error": {...}} body; unrecognized errors map
// to a generic 500.
func ToHTTP(resp handler.Response, err error, redactor *redact.Redactor) handler.Response {
	if err != nil {
		return handler.ErrorToResponse(err, redactor)
	}
	resp.StatusCode = resp.Status()
	return resp
}

// malformed builds the error returned for a payload that cannot be
// normalized.
func malformed(message string, cause error) *apperrors.AppError {
	return apperrors.Application(apperrors.CodeMalformedEvent, message, http.StatusBadRequest).WithCause(cause)
}

func unsupported(message string) *apperrors.AppError {
	return apperrors.Application(apperrors.CodeUnsupportedEvent, message, http.StatusBadRequest)
}

// lowerKeys copies headers with lower-cased keys. Values of keys that differ
// only in case are joined with ",".
func lowerKeys(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.ToLower(k)
		if existing, ok := out[key]; ok && existing != v {
			v = existing + "," + v
		}
		out[key] = v
	}
	return out
}

// mergeMultiValue folds multi-value entries into single-value ones, joining
// with ",". Keys already present keep their single value.
func mergeMultiValue(single map[string]string, multi map[string][]string, lower bool) map[string]string {
	out := make(map[string]string, len(single)+len(multi))
	for k, v := range single {
		if lower {
			k = strings.ToLower(k)
		}
		out[k] = v
	}
	for k, values := range multi {
		if lower {
			k = strings.ToLower(k)
		}
		if _, ok := out[k]; ok || len(values) == 0 {
			continue
		}
		out[k] = strings.Join(values, ",")
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newID() string {
	return uuid.New().String()
}
