package mocks

import (
	"context"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowSink is a mock implementation of protocol.WorkflowSink.
type MockWorkflowSink struct {
	mock.Mock
}

func (m *MockWorkflowSink) ApplyWorkflow(ctx context.Context, trigger protocol.WorkflowTrigger, cadenceID, leadID string) error {
	args := m.Called(ctx, trigger, cadenceID, leadID)

	return args.Error(0)
}

// MockCRMAdapter is a mock implementation of protocol.CRMAdapter.
type MockCRMAdapter struct {
	mock.Mock
}

func (m *MockCRMAdapter) MirrorStatus(ctx context.Context, req protocol.MirrorRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

// MockSettingsProvider is a mock implementation of protocol.SettingsProvider.
type MockSettingsProvider struct {
	mock.Mock
}

func (m *MockSettingsProvider) Settings(ctx context.Context, userID string) (models.Settings, error) {
	args := m.Called(ctx, userID)

	return args.Get(0).(models.Settings), args.Error(1)
}
