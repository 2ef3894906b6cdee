package main

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/storage"
	"github.com/genesismon/genesismon/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// seed fills the Firestore emulator with a week of plausible hourly usage so
// the API has something to serve during development.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		days        = 7
		elecUnitNZD = 0.32
		gasUnitNZD  = 0.11
		elecBaseKW  = 0.4 // fridge, standby loads
		gasBaseKW   = 0.1 // pilot light and losses
	)

	now := time.Now().UTC().Truncate(time.Hour)
	start := now.AddDate(0, 0, -days)

	var elecRecords, gasRecords []types.UsageRecord
	var elecSumKWH, elecSumCost, gasSumKWH, gasSumCost float64

	for t := start; t.Before(now); t = t.Add(time.Hour) {
		hour := t.Hour()

		// electricity: morning and evening peaks plus jitter
		elecKWH := elecBaseKW
		if hour >= 6 && hour < 9 {
			elecKWH += 1.2 // breakfast, hot water reheat
		} else if hour >= 17 && hour < 22 {
			elecKWH += 2.0 // cooking, heating, lights
		}
		elecKWH += rng.Float64() * 0.4

		// gas: heating tracks the cold hours
		gasKWH := gasBaseKW
		if hour >= 6 && hour < 10 || hour >= 17 && hour < 23 {
			gasKWH += 1.5
		}
		gasKWH += rng.Float64() * 0.3

		elecCost := elecKWH * elecUnitNZD
		elecSumKWH = round2(elecSumKWH + elecKWH)
		elecSumCost = round2(elecSumCost + elecCost)
		elecRecords = append(elecRecords, types.UsageRecord{
			TSHourStart: t,
			KWH:         elecKWH,
			CostNZD:     elecCost,
			SumKWH:      elecSumKWH,
			SumCostNZD:  elecSumCost,
		})

		gasCost := gasKWH * gasUnitNZD
		gasSumKWH = round2(gasSumKWH + gasKWH)
		gasSumCost = round2(gasSumCost + gasCost)
		gasRecords = append(gasRecords, types.UsageRecord{
			TSHourStart: t,
			KWH:         gasKWH,
			CostNZD:     gasCost,
			SumKWH:      gasSumKWH,
			SumCostNZD:  gasSumCost,
		})
	}

	if err := s.UpsertUsageRecords(ctx, types.FuelElectricity, elecRecords); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed electricity usage", "error", err)
		os.Exit(1)
	}
	if err := s.UpsertUsageRecords(ctx, types.FuelGas, gasRecords); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed gas usage", "error", err)
		os.Exit(1)
	}

	snap := types.Snapshot{
		Timestamp: now,
		Data: map[types.DataKey]json.RawMessage{
			types.DataKeyPowerShoutBalance: json.RawMessage(`{"balance":{"hours":6}}`),
			types.DataKeyGenerationMix:     json.RawMessage(`{"renewablePercentage":91.4}`),
			types.DataKeyBillingPlans:      json.RawMessage(`{"plans":[{"fuel":"electricity","name":"Energy Plus"},{"fuel":"naturalgas","name":"Energy Plus"}]}`),
		},
	}
	if err := s.SetSnapshot(ctx, snap); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed snapshot", "error", err)
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data",
		"hours", len(elecRecords),
		"from", start.Format(time.RFC3339),
		"to", now.Format(time.RFC3339))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
