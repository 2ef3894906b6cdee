package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/types"
	"golang.org/x/time/rate"
)

const (
	// backfillChunkDays is how many days the portal returns per usage
	// request.
	backfillChunkDays = 4
	// backfillPause spaces out the chunk requests so a long backfill does
	// not hammer the portal.
	backfillPause = 2 * time.Second
)

// Backfill fetches historical usage going back the given number of days and
// records it through the regular statistics path. The window is walked
// backwards from today in chunks; a failed chunk is logged and skipped so
// one bad window does not abort the rest.
func (p *Poller) Backfill(ctx context.Context, days int, fuelSelector string) error {
	fuels, err := types.ParseFuelSelector(fuelSelector)
	if err != nil {
		return err
	}
	if days <= 0 {
		return fmt.Errorf("days must be positive")
	}

	if err := p.api.EnsureValidToken(ctx); err != nil {
		return fmt.Errorf("token pre-flight failed: %w", err)
	}

	pause := p.backfillPause
	if pause <= 0 {
		pause = backfillPause
	}
	limiter := rate.NewLimiter(rate.Every(pause), 1)

	for _, fuel := range fuels {
		entries, err := p.fetchBackfill(ctx, fuel, days, limiter)
		if err != nil {
			return err
		}
		log.Ctx(ctx).InfoContext(ctx, "backfill fetched",
			slog.String("fuel", string(fuel)),
			slog.Int("days", days),
			slog.Int("entries", len(entries)))
		if err := p.appendStatistics(ctx, fuel, entries); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) fetchBackfill(ctx context.Context, fuel types.FuelType, days int, limiter *rate.Limiter) ([]types.UsageEntry, error) {
	fetch := p.api.GetElectricityUsageRange
	if fuel == types.FuelGas {
		fetch = p.api.GetGasUsageRange
	}

	today := time.Now()
	var entries []types.UsageEntry
	for offset := 0; offset < days; offset += backfillChunkDays {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		end := today.AddDate(0, 0, -offset)
		start := end.AddDate(0, 0, -(backfillChunkDays - 1))
		raw, err := fetch(ctx, start, end)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "backfill chunk failed",
				slog.String("fuel", string(fuel)),
				slog.Time("start", start),
				slog.Time("end", end),
				slog.Any("err", err))
			continue
		}
		chunk, err := types.ParseUsagePayload(raw)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "backfill chunk undecodable",
				slog.String("fuel", string(fuel)),
				slog.Time("start", start),
				slog.Time("end", end),
				slog.Any("err", err))
			continue
		}
		entries = append(entries, chunk...)
	}
	return entries, nil
}
