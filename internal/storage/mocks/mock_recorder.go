package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/verimail/internal/event"
	"github.com/shaharia-lab/verimail/internal/storage"
)

// MockRecorder is a mock implementation of storage.Recorder.
type MockRecorder struct {
	mock.Mock
}

//nolint:revive
func (m *MockRecorder) Record(ctx context.Context, id event.UserIdentity) (storage.RecordOutcome, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(storage.RecordOutcome), args.Error(1)
}
