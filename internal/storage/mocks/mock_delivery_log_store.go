package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/verimail/internal/storage"
)

// MockDeliveryLogStore is a mock implementation of storage.DeliveryLogStore.
type MockDeliveryLogStore struct {
	mock.Mock
}

//nolint:revive
func (m *MockDeliveryLogStore) LogDelivery(ctx context.Context, entry storage.DeliveryLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

//nolint:revive
func (m *MockDeliveryLogStore) ListDeliveries(ctx context.Context, recipient string, limit int) ([]storage.DeliveryLogEntry, error) {
	args := m.Called(ctx, recipient, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.DeliveryLogEntry), args.Error(1)
}

//nolint:revive
func (m *MockDeliveryLogStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
