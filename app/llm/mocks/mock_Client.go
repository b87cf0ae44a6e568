// Package mocks provides test doubles for the llm client.
package mocks

import (
	"context"

	llm "github.com/lysyi3m/tradewire/app/llm"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreateMessage provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateMessage(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreateMessage")
	}

	var r0 *llm.MessageResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, llm.MessageRequest) (*llm.MessageResponse, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*llm.MessageResponse)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// TextResponse builds a response whose first block is text.
func TextResponse(text string) *llm.MessageResponse {
	return &llm.MessageResponse{Content: []llm.ContentBlock{{Type: "text", Text: text}}}
}

// NewMockClient creates a new instance of MockClient. It also registers a
// cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
