// Package mocks holds testify mocks of the interfaces components are wired through.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of eventbus.Publisher interface.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload any) error {
	args := m.Called(ctx, topic, payload)

	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()

	return args.Error(0)
}
