package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/types"
)

// recordUsage parses a raw usage payload and appends its hours to the stored
// statistics for the fuel. A nil payload (failed or empty fetch) is a no-op.
func (p *Poller) recordUsage(ctx context.Context, fuel types.FuelType, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	entries, err := types.ParseUsagePayload(raw)
	if err != nil {
		return err
	}
	return p.appendStatistics(ctx, fuel, entries)
}

// appendStatistics stores new hourly records, continuing the running sums
// from the last record already in storage. Hours at or before the last
// stored hour are dropped so re-fetching an overlapping window never
// double-counts.
func (p *Poller) appendStatistics(ctx context.Context, fuel types.FuelType, entries []types.UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}

	last, err := p.db.GetLatestUsageTime(ctx, fuel)
	if err != nil {
		return fmt.Errorf("failed to look up latest stored hour: %w", err)
	}

	var sumKWH, sumCost float64
	if !last.IsZero() {
		prev, err := p.db.GetUsageHistory(ctx, fuel, last, last.Add(time.Hour))
		if err != nil {
			return fmt.Errorf("failed to load last stored record: %w", err)
		}
		if len(prev) > 0 {
			sumKWH = prev[len(prev)-1].SumKWH
			sumCost = prev[len(prev)-1].SumCostNZD
		}
	}

	records := buildUsageRecords(ctx, entries, last, sumKWH, sumCost)
	if len(records) == 0 {
		return nil
	}

	if err := p.db.UpsertUsageRecords(ctx, fuel, records); err != nil {
		return fmt.Errorf("failed to store usage records: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "recorded usage statistics",
		slog.String("fuel", string(fuel)),
		slog.Int("records", len(records)),
		slog.Time("through", records[len(records)-1].TSHourStart))
	return nil
}

// buildUsageRecords converts raw usage entries into hourly records with
// running sums. Entries at or before lastStored are dropped; entries with an
// unparseable start are skipped with a warning. Sums are rounded to two
// decimals the same way each cycle so they stay stable across restarts.
func buildUsageRecords(ctx context.Context, entries []types.UsageEntry, lastStored time.Time, sumKWH, sumCost float64) []types.UsageRecord {
	type parsedEntry struct {
		ts    time.Time
		entry types.UsageEntry
	}
	parsed := make([]parsedEntry, 0, len(entries))
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339, e.StartDate)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping usage entry with bad start date",
				slog.String("startDate", e.StartDate),
				slog.Any("err", err))
			continue
		}
		parsed = append(parsed, parsedEntry{ts: ts.UTC(), entry: e})
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].ts.Before(parsed[j].ts) })

	var records []types.UsageRecord
	for _, pe := range parsed {
		if !lastStored.IsZero() && !pe.ts.After(lastStored) {
			continue
		}
		sumKWH = round2(sumKWH + pe.entry.KW)
		sumCost = round2(sumCost + pe.entry.CostNZD)
		records = append(records, types.UsageRecord{
			TSHourStart: pe.ts,
			KWH:         pe.entry.KW,
			CostNZD:     pe.entry.CostNZD,
			SumKWH:      sumKWH,
			SumCostNZD:  sumCost,
		})
	}
	return records
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
