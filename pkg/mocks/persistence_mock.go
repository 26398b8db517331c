package mocks

import (
	"context"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRunStore is a mock implementation of persistence.RunStore interface.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Load(ctx context.Context, date string) (*models.RunRecord, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunRecord), args.Error(1)
}

func (m *MockRunStore) Save(ctx context.Context, record *models.RunRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockRunStore) Update(ctx context.Context, date string, fn persistence.UpdateFunc) (*models.RunRecord, error) {
	args := m.Called(ctx, date, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RunRecord), args.Error(1)
}

func (m *MockRunStore) List(ctx context.Context, dates models.DateRange) ([]*models.RunRecord, error) {
	args := m.Called(ctx, dates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RunRecord), args.Error(1)
}

func (m *MockRunStore) AppendEvent(ctx context.Context, event models.StepEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockRunStore) Events(ctx context.Context, runID string, afterSeq int64) ([]models.StepEvent, error) {
	args := m.Called(ctx, runID, afterSeq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.StepEvent), args.Error(1)
}

func (m *MockRunStore) AcquireActive(ctx context.Context, active models.ActiveRun) error {
	args := m.Called(ctx, active)

	return args.Error(0)
}

func (m *MockRunStore) ActiveRun(ctx context.Context) (*models.ActiveRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActiveRun), args.Error(1)
}

func (m *MockRunStore) RequestStop(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)

	return args.Error(0)
}

func (m *MockRunStore) ReleaseActive(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)

	return args.Error(0)
}

func (m *MockRunStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockRunStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
