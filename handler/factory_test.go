package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fnkit/config"
	apperrors "fnkit/errors"
	"fnkit/observability"
)

func clearPlatformEnv(t *testing.T) {
	for _, key := range []string{
		"AWS_LAMBDA_FUNCTION_NAME", "LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV",
		"AWS_LAMBDA_RUNTIME_API", "FUNCTIONS_CUSTOMHANDLER_PORT", "FUNCTIONS_WORKER_RUNTIME",
	} {
		t.Setenv(key, "")
	}
}

func noopTerminal(ctx context.Context, inv *Invocation) (Response, error) {
	return NoContent(), nil
}

func TestNewFactory(t *testing.T) {
	provider := observability.NewNopProvider()

	factory := NewFactory(noopTerminal, provider)

	assert.NotNil(t, factory)
	assert.Equal(t, provider, factory.provider)
	assert.Equal(t, config.DefaultHandlerConfig(), factory.handlerCfg)
	assert.NotNil(t, factory.redactor)
	assert.False(t, factory.mapErrors)
}

func TestFactory_DefaultStack(t *testing.T) {
	clearPlatformEnv(t)
	provider := observability.NewNopProvider()

	tests := []struct {
		name     string
		build    func() *Factory
		expected int
	}{
		{
			name:     "defaults",
			build:    func() *Factory { return NewFactory(noopTerminal, provider) },
			expected: 4, // tracing, logging, metrics, recovery
		},
		{
			name: "tracing and metrics disabled",
			build: func() *Factory {
				cfg := config.DefaultHandlerConfig()
				cfg.EnableTracing = false
				cfg.EnableMetrics = false
				return NewFactory(noopTerminal, provider).WithHandlerConfig(cfg)
			},
			expected: 2,
		},
		{
			name: "error responses and extras",
			build: func() *Factory {
				return NewFactory(noopTerminal, provider).
					WithErrorResponses().
					Use(ValidateEvent(nil), RequireRole("admin"))
			},
			expected: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.build().Create()
			assert.Len(t, handler.middlewares, tt.expected)
		})
	}
}

func TestFactory_CreateForPlatform(t *testing.T) {
	clearPlatformEnv(t)
	provider := observability.NewNopProvider()

	assert.Equal(t, PlatformLambda, NewFactory(noopTerminal, provider).CreateLambda().Config().Platform)
	assert.Equal(t, PlatformAzure, NewFactory(noopTerminal, provider).CreateAzure().Config().Platform)
	assert.Equal(t, PlatformHTTP, NewFactory(noopTerminal, provider).CreateHTTP().Config().Platform)
	assert.Equal(t, PlatformHTTP, NewFactory(noopTerminal, provider).Create().Config().Platform)
}

func TestFactory_ErrorResponses(t *testing.T) {
	clearPlatformEnv(t)
	provider := observability.NewNopProvider()

	handler := NewFactory(func(ctx context.Context, inv *Invocation) (Response, error) {
		return Response{}, apperrors.NotFound("order not found")
	}, provider).WithErrorResponses().Create()

	resp, err := handler.Handle(context.Background(), newTestInvocation())

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"order not found"}}`, string(resp.Body))
}

func TestFactory_RecoversPanics(t *testing.T) {
	clearPlatformEnv(t)

	handler := NewFactory(func(ctx context.Context, inv *Invocation) (Response, error) {
		panic("boom")
	}, observability.NewNopProvider()).Create()

	_, err := handler.Handle(context.Background(), newTestInvocation())

	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{"no markers", nil, PlatformHTTP},
		{"lambda function name", map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "orders"}, PlatformLambda},
		{"lambda runtime api", map[string]string{"AWS_LAMBDA_RUNTIME_API": "127.0.0.1:9001"}, PlatformLambda},
		{"azure custom handler", map[string]string{"FUNCTIONS_CUSTOMHANDLER_PORT": "7071"}, PlatformAzure},
		{"azure worker runtime", map[string]string{"FUNCTIONS_WORKER_RUNTIME": "custom"}, PlatformAzure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearPlatformEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, DetectPlatform())
		})
	}
}
