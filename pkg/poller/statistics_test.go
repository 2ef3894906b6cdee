package poller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/genesismon/genesismon/pkg/storage/storagemock"
	"github.com/genesismon/genesismon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBuildUsageRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("FreshSums", func(t *testing.T) {
		// out of order on purpose, the records must come back sorted
		entries := []types.UsageEntry{
			{StartDate: "2025-08-24T02:00:00+12:00", KW: 2.5, CostNZD: 0.5},
			{StartDate: "2025-08-24T01:00:00+12:00", KW: 1.5, CostNZD: 0.3},
		}
		recs := buildUsageRecords(ctx, entries, time.Time{}, 0, 0)
		require.Len(t, recs, 2)

		assert.Equal(t, time.Date(2025, 8, 23, 13, 0, 0, 0, time.UTC), recs[0].TSHourStart)
		assert.Equal(t, 1.5, recs[0].KWH)
		assert.Equal(t, 0.3, recs[0].CostNZD)
		assert.Equal(t, 1.5, recs[0].SumKWH)
		assert.Equal(t, 0.3, recs[0].SumCostNZD)

		assert.Equal(t, time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC), recs[1].TSHourStart)
		assert.Equal(t, 4.0, recs[1].SumKWH)
		assert.Equal(t, 0.8, recs[1].SumCostNZD)
	})

	t.Run("ContinuesFromOffset", func(t *testing.T) {
		entries := []types.UsageEntry{
			{StartDate: "2025-08-24T03:00:00+12:00", KW: 2, CostNZD: 0.4},
		}
		recs := buildUsageRecords(ctx, entries, time.Time{}, 10.5, 2.1)
		require.Len(t, recs, 1)
		assert.Equal(t, 12.5, recs[0].SumKWH)
		assert.Equal(t, 2.5, recs[0].SumCostNZD)
	})

	t.Run("SkipsStoredHours", func(t *testing.T) {
		lastStored := time.Date(2025, 8, 23, 13, 0, 0, 0, time.UTC)
		entries := []types.UsageEntry{
			{StartDate: "2025-08-24T00:00:00+12:00", KW: 1, CostNZD: 0.1},
			{StartDate: "2025-08-24T01:00:00+12:00", KW: 2, CostNZD: 0.2}, // == lastStored
			{StartDate: "2025-08-24T02:00:00+12:00", KW: 3, CostNZD: 0.3},
		}
		recs := buildUsageRecords(ctx, entries, lastStored, 5, 1)
		require.Len(t, recs, 1, "hours at or before the last stored hour are dropped")
		assert.Equal(t, lastStored.Add(time.Hour), recs[0].TSHourStart)
		assert.Equal(t, 8.0, recs[0].SumKWH)
		assert.Equal(t, 1.3, recs[0].SumCostNZD)
	})

	t.Run("SkipsUnparseableDates", func(t *testing.T) {
		entries := []types.UsageEntry{
			{StartDate: "not a time", KW: 100, CostNZD: 100},
			{StartDate: "2025-08-24T01:00:00+12:00", KW: 1, CostNZD: 0.1},
		}
		recs := buildUsageRecords(ctx, entries, time.Time{}, 0, 0)
		require.Len(t, recs, 1)
		assert.Equal(t, 1.0, recs[0].SumKWH)
	})

	t.Run("RoundsSums", func(t *testing.T) {
		entries := []types.UsageEntry{
			{StartDate: "2025-08-24T01:00:00+12:00", KW: 0.1, CostNZD: 0.1},
			{StartDate: "2025-08-24T02:00:00+12:00", KW: 0.2, CostNZD: 0.2},
		}
		recs := buildUsageRecords(ctx, entries, time.Time{}, 0, 0)
		require.Len(t, recs, 2)
		assert.Equal(t, 0.3, recs[1].SumKWH, "sums are rounded to two decimals")
		assert.Equal(t, 0.2, recs[1].KWH, "per-hour values stay raw")
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, buildUsageRecords(ctx, nil, time.Time{}, 0, 0))
	})
}

func TestAppendStatistics(t *testing.T) {
	ctx := context.Background()

	t.Run("ContinuesSumsFromStore", func(t *testing.T) {
		last := time.Date(2025, 8, 23, 13, 0, 0, 0, time.UTC)

		mockDB := new(storagemock.MockDatabase)
		mockDB.On("GetLatestUsageTime", mock.Anything, types.FuelElectricity).Return(last, nil)
		mockDB.On("GetUsageHistory", mock.Anything, types.FuelElectricity, last, last.Add(time.Hour)).
			Return([]types.UsageRecord{{TSHourStart: last, KWH: 1, CostNZD: 0.2, SumKWH: 10, SumCostNZD: 2}}, nil)
		mockDB.On("UpsertUsageRecords", mock.Anything, types.FuelElectricity, mock.MatchedBy(func(recs []types.UsageRecord) bool {
			return len(recs) == 1 &&
				recs[0].TSHourStart.Equal(last.Add(time.Hour)) &&
				recs[0].SumKWH == 11.25 && recs[0].SumCostNZD == 2.25
		})).Return(nil)

		p := &Poller{db: mockDB}
		entries := []types.UsageEntry{
			{StartDate: "2025-08-24T01:00:00+12:00", KW: 9, CostNZD: 9}, // already stored
			{StartDate: "2025-08-24T02:00:00+12:00", KW: 1.25, CostNZD: 0.25},
		}
		require.NoError(t, p.appendStatistics(ctx, types.FuelElectricity, entries))
		mockDB.AssertExpectations(t)
	})

	t.Run("NothingNewToStore", func(t *testing.T) {
		last := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)

		mockDB := new(storagemock.MockDatabase)
		mockDB.On("GetLatestUsageTime", mock.Anything, types.FuelGas).Return(last, nil)
		mockDB.On("GetUsageHistory", mock.Anything, types.FuelGas, last, last.Add(time.Hour)).
			Return([]types.UsageRecord{{TSHourStart: last, SumKWH: 3, SumCostNZD: 1}}, nil)

		p := &Poller{db: mockDB}
		entries := []types.UsageEntry{
			{StartDate: "2025-08-24T01:00:00+12:00", KW: 1, CostNZD: 0.1},
			{StartDate: "2025-08-24T02:00:00+12:00", KW: 2, CostNZD: 0.2},
		}
		require.NoError(t, p.appendStatistics(ctx, types.FuelGas, entries))
		mockDB.AssertNotCalled(t, "UpsertUsageRecords", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("EmptyEntries", func(t *testing.T) {
		mockDB := new(storagemock.MockDatabase)
		p := &Poller{db: mockDB}
		require.NoError(t, p.appendStatistics(ctx, types.FuelElectricity, nil))
		mockDB.AssertNotCalled(t, "GetLatestUsageTime", mock.Anything, mock.Anything)
	})

	t.Run("LookupFailure", func(t *testing.T) {
		mockDB := new(storagemock.MockDatabase)
		mockDB.On("GetLatestUsageTime", mock.Anything, types.FuelElectricity).Return(time.Time{}, errors.New("firestore down"))

		p := &Poller{db: mockDB}
		entries := []types.UsageEntry{{StartDate: "2025-08-24T01:00:00+12:00", KW: 1, CostNZD: 0.1}}
		err := p.appendStatistics(ctx, types.FuelElectricity, entries)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "latest stored hour")
	})
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("NilPayload", func(t *testing.T) {
		mockDB := new(storagemock.MockDatabase)
		p := &Poller{db: mockDB}
		require.NoError(t, p.recordUsage(ctx, types.FuelElectricity, nil))
		mockDB.AssertNotCalled(t, "GetLatestUsageTime", mock.Anything, mock.Anything)
	})

	t.Run("UndecodablePayload", func(t *testing.T) {
		p := &Poller{db: new(storagemock.MockDatabase)}
		err := p.recordUsage(ctx, types.FuelElectricity, json.RawMessage(`<html>`))
		require.Error(t, err)
	})
}
