package storagemock

import (
	"context"
	"time"

	"github.com/genesismon/genesismon/pkg/storage"
	"github.com/genesismon/genesismon/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) UpsertUsageRecords(ctx context.Context, fuel types.FuelType, records []types.UsageRecord) error {
	args := m.Called(ctx, fuel, records)
	return args.Error(0)
}

func (m *MockDatabase) GetUsageHistory(ctx context.Context, fuel types.FuelType, start, end time.Time) ([]types.UsageRecord, error) {
	args := m.Called(ctx, fuel, start, end)
	if recs := args.Get(0); recs != nil {
		return recs.([]types.UsageRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetLatestUsageTime(ctx context.Context, fuel types.FuelType) (time.Time, error) {
	args := m.Called(ctx, fuel)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockDatabase) SetSnapshot(ctx context.Context, snap types.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockDatabase) GetSnapshot(ctx context.Context) (types.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Snapshot), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
