package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/handler/mocks"
	"fnkit/health"
	"fnkit/observability"
)

func TestHTTPAdapter_ServeHTTP(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		var inv *handler.Invocation
		mockHandler := &mocks.MockHandler{}
		mockHandler.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			inv = args.Get(1).(*handler.Invocation)
		}).Return(handler.Response{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"result":"success"}`),
		}, nil)

		adapter := NewHTTPAdapter(mockHandler)

		req := httptest.NewRequest(http.MethodPost, "/orders/o-1?verbose=true", bytes.NewBufferString(`{"test":"data"}`))
		req.Header.Set("X-Request-ID", "test-123")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		adapter.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "test-123", w.Header().Get("X-Request-ID"))
		assert.JSONEq(t, `{"result":"success"}`, w.Body.String())

		require.NotNil(t, inv)
		assert.Equal(t, "test-123", inv.Event.ID)
		assert.Equal(t, handler.SourceHTTP, inv.Event.Source)
		assert.Equal(t, "orders", inv.Event.Type)
		assert.Equal(t, http.MethodPost, inv.Event.Method)
		assert.Equal(t, "/orders/o-1", inv.Event.Path)
		assert.Equal(t, "true", inv.Event.Query["verbose"])
		assert.Equal(t, "application/json", inv.Event.Header("Content-Type"))
		assert.JSONEq(t, `{"test":"data"}`, string(inv.Event.Body))
		assert.Equal(t, "test-123", inv.Provider.RequestID)
	})

	t.Run("generates request id", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectSource(handler.SourceHTTP, handler.NoContent(), nil)

		w := httptest.NewRecorder()
		NewHTTPAdapter(mockHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	})

	t.Run("error response", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectAny(handler.Response{}, apperrors.Validation([]apperrors.Violation{{Field: "sku", Kind: "required"}}))

		w := httptest.NewRecorder()
		NewHTTPAdapter(mockHandler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":{"code":"VALIDATION_ERROR","message":"event failed validation","violations":[{"field":"sku","kind":"required"}]}}`, w.Body.String())
	})

	t.Run("request too large", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		adapter := NewHTTPAdapter(mockHandler, WithMaxRequestSize(8))

		w := httptest.NewRecorder()
		adapter.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"much":"too large"}`)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		mockHandler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})
}

func TestHTTPAdapter_Health(t *testing.T) {
	tests := []struct {
		name     string
		probe    error
		expected int
	}{
		{"healthy", nil, http.StatusOK},
		{"unhealthy", errors.New("queue unreachable"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHandler := &mocks.MockHandler{}
			adapter := NewHTTPAdapter(mockHandler, WithHealthCheckers(
				health.Ping("queue", func(context.Context) error { return tt.probe }),
			))

			for _, path := range []string{"/health", "/readyz"} {
				w := httptest.NewRecorder()
				adapter.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

				assert.Equal(t, tt.expected, w.Code, path)
				var summary health.Summary
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
				assert.Len(t, summary.Checks, 1)
			}
			mockHandler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
		})
	}
}

func TestHTTPAdapter_RoutesAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fnkit_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	var params map[string]string
	adapter := NewHTTPAdapter(&mocks.MockHandler{},
		WithMetrics(registry),
		WithRoute(http.MethodGet, "/docs/{name}", func(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
			params = inv.Event.PathParameters
			return handler.Text(http.StatusOK, "docs"), nil
		}),
	)

	w := httptest.NewRecorder()
	adapter.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/openapi", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "docs", w.Body.String())
	assert.Equal(t, "openapi", params["name"])

	w = httptest.NewRecorder()
	adapter.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fnkit_test_total 1")
}

func TestHTTPAdapter_FullPipeline(t *testing.T) {
	h := handler.NewFactory(func(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
		return handler.Response{}, apperrors.NotFound("order not found")
	}, observability.NewNopProvider()).CreateHTTP()

	w := httptest.NewRecorder()
	NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/o-404", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"order not found"}}`, w.Body.String())
}

func TestToHTTP(t *testing.T) {
	resp := ToHTTP(handler.Response{Body: []byte("x")}, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ToHTTP(handler.Response{}, errors.New("sql: connection refused"), nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"An internal error occurred"}}`, string(resp.Body))
}
