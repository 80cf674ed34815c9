package mocks

import (
	"context"

	"fnkit/handler"

	"github.com/stretchr/testify/mock"
)

// MockHandler is a mock implementation of handler.Invoker.
// Use this to test platform adapters without a real pipeline.
type MockHandler struct {
	mock.Mock
}

var _ handler.Invoker = (*MockHandler)(nil)

// Handle mocks invocation handling
func (m *MockHandler) Handle(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(handler.Response), args.Error(1)
}

// ExpectSource sets up an expectation for invocations from one event source
func (m *MockHandler) ExpectSource(source string, response handler.Response, err error) *mock.Call {
	return m.On("Handle",
		mock.Anything, // ctx
		mock.MatchedBy(func(inv *handler.Invocation) bool {
			return inv.Event.Source == source
		}),
	).Return(response, err)
}

// ExpectAny sets up an expectation for any invocation
func (m *MockHandler) ExpectAny(response handler.Response, err error) *mock.Call {
	return m.On("Handle", mock.Anything, mock.Anything).Return(response, err)
}
