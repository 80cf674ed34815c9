// Package openapi serves a bundled OpenAPI document, patched at request time
// with the deployed version and the origin the caller reached us on.
package openapi

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"fnkit/handler"
)

// Handler parses doc (YAML or JSON) once and returns a handler serving it.
// Each response carries info.version set to version and a single server
// entry built from the X-Forwarded-Proto and X-Forwarded-Host (or Host)
// headers. A "format=yaml" query parameter returns YAML instead of JSON.
func Handler(doc []byte, version string) (handler.HandlerFunc, error) {
	var parsed map[string]any
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("OpenAPI document is empty")
	}

	return func(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
		patched := Patch(parsed, version, origin(inv.Event))

		if inv.Event.Query["format"] == "yaml" {
			out, err := yaml.Marshal(patched)
			if err != nil {
				return handler.Response{}, fmt.Errorf("failed to encode OpenAPI document: %w", err)
			}
			return handler.Response{
				StatusCode: http.StatusOK,
				Headers:    map[string]string{"Content-Type": "application/yaml"},
				Body:       out,
			}, nil
		}
		return handler.OK(patched)
	}, nil
}

// Patch returns a copy of doc with info.version and servers replaced. An
// empty version or origin leaves the corresponding field untouched. doc is
// not modified.
func Patch(doc map[string]any, version, origin string) map[string]any {
	out := maps.Clone(doc)
	if out == nil {
		out = make(map[string]any)
	}

	if version != "" {
		info, _ := doc["info"].(map[string]any)
		info = maps.Clone(info)
		if info == nil {
			info = make(map[string]any)
		}
		info["version"] = version
		out["info"] = info
	}

	if origin != "" {
		out["servers"] = []any{map[string]any{"url": origin}}
	}
	return out
}

func origin(event *handler.Event) string {
	host := first(event.Header("X-Forwarded-Host"))
	if host == "" {
		host = event.Header("Host")
	}
	if host == "" {
		return ""
	}

	proto := first(event.Header("X-Forwarded-Proto"))
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + host
}

// first returns the first entry of a comma-separated forwarded header.
func first(v string) string {
	head, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(head)
}
