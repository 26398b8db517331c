package mocks

import (
	"context"

	"github.com/dukex/dailyreel/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventPublisher is a mock implementation of eventbus.EventPublisher interface.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockEventPublisher) GenerateID() string {
	args := m.Called()

	return args.String(0)
}
