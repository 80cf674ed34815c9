package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fnkit/config"
	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/handler/mocks"
	"fnkit/observability"
)

func stringPtr(s string) *string {
	return &s
}

func TestLambdaAdapter_HandleSQS(t *testing.T) {
	t.Run("successful batch", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.On("Handle", mock.Anything, mock.MatchedBy(func(inv *handler.Invocation) bool {
			return inv.Event.Source == handler.SourceSQS &&
				len(inv.Event.Records) == 1 &&
				inv.Event.Records[0].ID == "msg-123" &&
				inv.Event.Records[0].Attributes["type"] == "order.placed"
		})).Return(handler.Response{StatusCode: http.StatusOK}, nil)

		adapter := NewLambdaAdapter(mockHandler, nil)

		response, err := adapter.HandleSQS(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{
				MessageId: "msg-123",
				Body:      `{"orderId": "o-1"}`,
				MessageAttributes: map[string]events.SQSMessageAttribute{
					"type": {StringValue: stringPtr("order.placed"), DataType: "String"},
				},
			}},
		})

		assert.NoError(t, err)
		assert.Empty(t, response.BatchItemFailures)
		mockHandler.AssertExpectations(t)
	})

	t.Run("partial batch failure", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectSource(handler.SourceSQS, handler.Response{}, apperrors.Aggregate(apperrors.CodeBatchFailed, "2 of 3 records failed", []apperrors.Failure{
			{Code: "X", Data: map[string]any{"record_id": "msg-1"}},
			{Code: "Y", Data: map[string]any{"record_id": "msg-3"}},
		}))

		adapter := NewLambdaAdapter(mockHandler, nil)

		response, err := adapter.HandleSQS(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "msg-1", Body: `{}`},
				{MessageId: "msg-2", Body: `{}`},
				{MessageId: "msg-3", Body: `{}`},
			},
		})

		require.NoError(t, err)
		assert.Equal(t, []events.SQSBatchItemFailure{
			{ItemIdentifier: "msg-1"},
			{ItemIdentifier: "msg-3"},
		}, response.BatchItemFailures)
	})

	t.Run("partial batch failure disabled", func(t *testing.T) {
		failure := apperrors.Aggregate(apperrors.CodeBatchFailed, "1 of 1 records failed", []apperrors.Failure{
			{Code: "X", Data: map[string]any{"record_id": "msg-1"}},
		})
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectAny(handler.Response{}, failure)

		adapter := NewLambdaAdapter(mockHandler, &config.LambdaConfig{EnablePartialBatchFailure: false})

		response, err := adapter.HandleSQS(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "msg-1", Body: `{}`}},
		})

		assert.Same(t, failure, err)
		assert.Empty(t, response.BatchItemFailures)
	})

	t.Run("non-aggregate error fails the whole batch", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectAny(handler.Response{}, apperrors.Internal("boom", nil))

		adapter := NewLambdaAdapter(mockHandler, nil)

		_, err := adapter.HandleSQS(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "msg-1", Body: `{}`}},
		})

		assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	})

	t.Run("base64 body is decoded", func(t *testing.T) {
		var got []byte
		mockHandler := &mocks.MockHandler{}
		mockHandler.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			got = args.Get(1).(*handler.Invocation).Event.Records[0].Body
		}).Return(handler.Response{}, nil)

		adapter := NewLambdaAdapter(mockHandler, nil)
		encoded := base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))

		_, err := adapter.HandleSQS(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "msg-1", Body: encoded}},
		})

		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(got))
	})
}

func TestLambdaAdapter_SQSWithBatchPipeline(t *testing.T) {
	perRecord := func(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
		var msg struct {
			Fail bool `json:"fail"`
		}
		if err := inv.Event.Unmarshal(&msg); err != nil {
			return handler.Response{}, err
		}
		if msg.Fail {
			return handler.Response{}, apperrors.Application("REJECTED", "rejected", http.StatusUnprocessableEntity)
		}
		return handler.NoContent(), nil
	}

	h := handler.NewFactory(handler.BatchEvent(perRecord, nil), observability.NewNopProvider()).CreateLambda()
	adapter := NewLambdaAdapter(h, nil)

	response, err := adapter.HandleSQS(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{
			{MessageId: "m-0", Body: `{"fail":false}`},
			{MessageId: "m-1", Body: `{"fail":true}`},
			{MessageId: "m-2", Body: `{"fail":false}`},
			{MessageId: "m-3", Body: `{"fail":true}`},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m-1"}, {ItemIdentifier: "m-3"}}, response.BatchItemFailures)
}

func TestLambdaAdapter_HandleAPIGateway(t *testing.T) {
	t.Run("request normalization", func(t *testing.T) {
		var inv *handler.Invocation
		mockHandler := &mocks.MockHandler{}
		mockHandler.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			inv = args.Get(1).(*handler.Invocation)
		}).Return(handler.Response{
			StatusCode: http.StatusCreated,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"id":"o-1"}`),
		}, nil)

		adapter := NewLambdaAdapter(mockHandler, nil)

		resp, err := adapter.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:        "POST",
			Path:              "/orders",
			Headers:           map[string]string{"Content-Type": "application/json"},
			MultiValueHeaders: map[string][]string{"X-Forwarded-For": {"1.1.1.1", "2.2.2.2"}},
			Body:              base64.StdEncoding.EncodeToString([]byte(`{"sku":"a"}`)),
			IsBase64Encoded:   true,
			RequestContext: events.APIGatewayProxyRequestContext{
				RequestID: "api-req-1",
				Authorizer: map[string]interface{}{
					"claims": map[string]interface{}{"sub": "user-1", "email": "u@example.com"},
				},
			},
		})

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, `{"id":"o-1"}`, resp.Body)

		require.NotNil(t, inv)
		assert.Equal(t, "api-req-1", inv.Event.ID)
		assert.Equal(t, handler.SourceAPIGateway, inv.Event.Source)
		assert.Equal(t, "application/json", inv.Event.Header("Content-Type"))
		assert.Equal(t, "1.1.1.1,2.2.2.2", inv.Event.Header("x-forwarded-for"))
		assert.JSONEq(t, `{"sku":"a"}`, string(inv.Event.Body))
		assert.Equal(t, "user-1", inv.Event.Authorizer["sub"])
	})

	t.Run("lambda authorizer context", func(t *testing.T) {
		assert.Equal(t, map[string]any{"principalId": "p-1"}, restAuthorizerClaims(map[string]interface{}{"principalId": "p-1"}))
		assert.Nil(t, restAuthorizerClaims(nil))
	})

	t.Run("error mapping with redaction", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectAny(handler.Response{}, apperrors.Application("UPSTREAM", "upstream failed", http.StatusBadGateway).WithData("password", "hunter2"))

		adapter := NewLambdaAdapter(mockHandler, nil)

		resp, err := adapter.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/"})

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.JSONEq(t, `{"error":{"code":"UPSTREAM","message":"upstream failed","data":{"password":"[REDACTED]"}}}`, resp.Body)
	})

	t.Run("unrecognized error", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectAny(handler.Response{}, assert.AnError)

		adapter := NewLambdaAdapter(mockHandler, nil)

		resp, err := adapter.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/"})

		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.NotContains(t, resp.Body, assert.AnError.Error())
	})

	t.Run("invalid base64 body", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		adapter := NewLambdaAdapter(mockHandler, nil)

		resp, err := adapter.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: "POST", Body: "%%%", IsBase64Encoded: true,
		})

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		mockHandler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})
}

func TestLambdaAdapter_HandleHTTPAPI(t *testing.T) {
	var inv *handler.Invocation
	mockHandler := &mocks.MockHandler{}
	mockHandler.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inv = args.Get(1).(*handler.Invocation)
	}).Return(handler.Text(http.StatusOK, "ok"), nil)

	adapter := NewLambdaAdapter(mockHandler, nil)

	resp, err := adapter.HandleHTTPAPI(context.Background(), events.APIGatewayV2HTTPRequest{
		Version: "2.0",
		RawPath: "/orders/o-1",
		Headers: map[string]string{"Authorization": "Bearer x"},
		Cookies: []string{"a=1", "b=2"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RequestID: "v2-req",
			HTTP:      events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: "GET"},
			Authorizer: &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
				JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
					Claims: map[string]string{"sub": "user-2", "cognito:groups": "[admin staff]"},
				},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", resp.Body)
	assert.Equal(t, handler.SourceAPIGatewayV2, inv.Event.Source)
	assert.Equal(t, "GET", inv.Event.Method)
	assert.Equal(t, "/orders/o-1", inv.Event.Path)
	assert.Equal(t, "Bearer x", inv.Event.Header("authorization"))
	assert.Equal(t, "a=1; b=2", inv.Event.Header("cookie"))
	assert.Equal(t, "user-2", inv.Event.Authorizer["sub"])
}

func TestLambdaAdapter_HandleEvent(t *testing.T) {
	mockHandler := &mocks.MockHandler{}
	mockHandler.ExpectSource(handler.SourceSQS, handler.Response{}, nil)
	mockHandler.ExpectSource(handler.SourceAPIGateway, handler.NoContent(), nil)
	mockHandler.ExpectSource(handler.SourceAPIGatewayV2, handler.NoContent(), nil)

	adapter := NewLambdaAdapter(mockHandler, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		event    string
		expected interface{}
		wantCode string
	}{
		{
			name:     "sqs",
			event:    `{"Records":[{"messageId":"m-1","eventSource":"aws:sqs","body":"{}"}]}`,
			expected: events.SQSEventResponse{},
		},
		{
			name:     "rest api",
			event:    `{"httpMethod":"GET","path":"/","requestContext":{"requestId":"r"}}`,
			expected: events.APIGatewayProxyResponse{},
		},
		{
			name:     "http api",
			event:    `{"version":"2.0","rawPath":"/","requestContext":{"http":{"method":"GET"}}}`,
			expected: events.APIGatewayV2HTTPResponse{},
		},
		{
			name:     "unsupported",
			event:    `{"detail-type":"Scheduled Event"}`,
			wantCode: apperrors.CodeUnsupportedEvent,
		},
		{
			name:     "malformed",
			event:    `{"Records":`,
			wantCode: apperrors.CodeMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := adapter.HandleEvent(ctx, json.RawMessage(tt.event))
			if tt.wantCode != "" {
				assert.True(t, apperrors.Is(err, tt.wantCode))
				assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expected, result)
		})
	}
}

func TestLambdaAdapter_ProviderContext(t *testing.T) {
	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	ctx = lambdacontext.NewContext(ctx, &lambdacontext.LambdaContext{AwsRequestID: "aws-req-1"})

	pc := NewLambdaAdapter(&mocks.MockHandler{}, nil).providerContext(ctx)

	assert.Equal(t, "aws-req-1", pc.RequestID)
	assert.Equal(t, handler.PlatformLambda, pc.Platform)
	assert.Equal(t, deadline, pc.Deadline)
	assert.NotNil(t, pc.Raw)
}
