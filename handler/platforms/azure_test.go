package platforms

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/handler/mocks"
)

func postInvocation(t *testing.T, adapter *AzureAdapter, function, payload string) (*httptest.ResponseRecorder, azureResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/"+function, bytes.NewBufferString(payload))
	req.Header.Set("X-Azure-Functions-InvocationId", "inv-1")
	w := httptest.NewRecorder()

	adapter.ServeHTTP(w, req)

	var result azureResult
	if w.Code != http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	}
	return w, result
}

func TestAzureAdapter_HTTPTrigger(t *testing.T) {
	var inv *handler.Invocation
	mockHandler := &mocks.MockHandler{}
	mockHandler.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inv = args.Get(1).(*handler.Invocation)
	}).Return(handler.Response{
		StatusCode: http.StatusCreated,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"id":"o-1"}`),
	}, nil)

	principalHeader := base64.StdEncoding.EncodeToString([]byte(`{
		"auth_typ": "aad",
		"name_typ": "name",
		"role_typ": "http://schemas.microsoft.com/ws/2008/06/identity/claims/role",
		"claims": [
			{"typ": "http://schemas.microsoft.com/identity/claims/objectidentifier", "val": "oid-1"},
			{"typ": "name", "val": "Ada"},
			{"typ": "http://schemas.microsoft.com/ws/2008/06/identity/claims/role", "val": "admin"}
		]
	}`))

	payload := `{
		"Data": {
			"req": {
				"Url": "http://localhost:7071/api/orders?expand=items",
				"Method": "POST",
				"Query": "{\"expand\":\"items\"}",
				"Headers": {"Content-Type": ["application/json"], "X-MS-CLIENT-PRINCIPAL": ["` + principalHeader + `"]},
				"Params": {},
				"Body": "{\"sku\":\"a\"}"
			}
		},
		"Metadata": {"sys": {"MethodName": "orders", "RandGuid": "guid-1"}}
	}`

	w, result := postInvocation(t, NewAzureAdapter(mockHandler), "orders", payload)

	assert.Equal(t, http.StatusOK, w.Code)
	res, ok := result.Outputs[DefaultOutputBinding].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(http.StatusCreated), res["statusCode"])
	assert.Equal(t, `{"id":"o-1"}`, res["body"])

	require.NotNil(t, inv)
	assert.Equal(t, handler.SourceAzureHTTP, inv.Event.Source)
	assert.Equal(t, "inv-1", inv.Provider.RequestID)
	assert.Equal(t, "orders", inv.Provider.FunctionName)
	assert.Equal(t, "/api/orders", inv.Event.Path)
	assert.Equal(t, "items", inv.Event.Query["expand"])
	assert.JSONEq(t, `{"sku":"a"}`, string(inv.Event.Body))
	assert.Equal(t, "application/json", inv.Event.Header("content-type"))
	assert.Equal(t, "oid-1", inv.Event.Authorizer["oid"])
	assert.Equal(t, "Ada", inv.Event.Authorizer["username"])
	assert.Equal(t, []string{"admin"}, inv.Event.Authorizer["roles"])
}

func TestAzureAdapter_HTTPTriggerError(t *testing.T) {
	mockHandler := &mocks.MockHandler{}
	mockHandler.ExpectAny(handler.Response{}, apperrors.Unauthorized(""))

	w, result := postInvocation(t, NewAzureAdapter(mockHandler).WithOutputBinding("$return"), "orders",
		`{"Data":{"req":{"Url":"http://localhost/api/orders","Method":"GET","Query":{},"Headers":{}}},"Metadata":{}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	res := result.Outputs["$return"].(map[string]any)
	assert.Equal(t, float64(http.StatusUnauthorized), res["statusCode"])
	assert.JSONEq(t, `{"error":{"code":"UNAUTHORIZED","message":"unauthorized"}}`, res["body"].(string))
}

func TestAzureAdapter_QueueTrigger(t *testing.T) {
	payload := `{
		"Data": {"orderQueueItem": "{\"orderId\":\"o-1\"}"},
		"Metadata": {"Id": "q-msg-1", "DequeueCount": 2, "sys": {"MethodName": "process"}}
	}`

	t.Run("success", func(t *testing.T) {
		var inv *handler.Invocation
		mockHandler := &mocks.MockHandler{}
		mockHandler.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			inv = args.Get(1).(*handler.Invocation)
		}).Return(handler.Response{StatusCode: http.StatusOK, Body: []byte(`{"processed":1}`)}, nil)

		w, result := postInvocation(t, NewAzureAdapter(mockHandler), "process", payload)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"processed": float64(1)}, result.ReturnValue)

		require.NotNil(t, inv)
		assert.Equal(t, handler.SourceAzureQueue, inv.Event.Source)
		require.Len(t, inv.Event.Records, 1)
		record := inv.Event.Records[0]
		assert.Equal(t, "q-msg-1", record.ID)
		assert.Equal(t, "2", record.Attributes["DequeueCount"])
		assert.JSONEq(t, `{"orderId":"o-1"}`, string(record.Body))
	})

	t.Run("failure surfaces as 500", func(t *testing.T) {
		mockHandler := &mocks.MockHandler{}
		mockHandler.ExpectSource(handler.SourceAzureQueue, handler.Response{},
			apperrors.Aggregate(apperrors.CodeBatchFailed, "1 of 1 records failed", []apperrors.Failure{{Code: "X"}}))

		w, result := postInvocation(t, NewAzureAdapter(mockHandler), "process", payload)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		require.Len(t, result.Logs, 1)
		assert.Contains(t, result.Logs[0], apperrors.CodeBatchFailed)
	})
}

func TestAzureAdapter_MalformedPayload(t *testing.T) {
	mockHandler := &mocks.MockHandler{}
	adapter := NewAzureAdapter(mockHandler)

	tests := []struct {
		name     string
		payload  string
		wantCode string
	}{
		{"not json", `{"Data":`, apperrors.CodeMalformedEvent},
		{"no bindings", `{"Data":{},"Metadata":{}}`, apperrors.CodeUnsupportedEvent},
		{"bad http trigger", `{"Data":{"req":"nope"}}`, apperrors.CodeMalformedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := postInvocation(t, adapter, "orders", tt.payload)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var envelope apperrors.Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
			assert.Equal(t, tt.wantCode, envelope.Error.Code)
		})
	}

	mockHandler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestClientPrincipalClaims(t *testing.T) {
	assert.Nil(t, clientPrincipalClaims(map[string]string{}))
	assert.Nil(t, clientPrincipalClaims(map[string]string{"x-ms-client-principal": "!!"}))

	claims := clientPrincipalClaims(map[string]string{
		"x-ms-client-principal":      base64.StdEncoding.EncodeToString([]byte(`{"claims":[]}`)),
		"x-ms-client-principal-id":   "user-1",
		"x-ms-client-principal-name": "ada@example.com",
	})
	assert.Equal(t, "user-1", claims["userId"])
	assert.Equal(t, "ada@example.com", claims["username"])
}
