package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/genesismon/genesismon/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Database persists what survives a restart: hourly usage statistics per fuel
// and the most recent poll snapshot. Session tokens are deliberately not part
// of this interface; every process start begins with a fresh login.
type Database interface {
	// Usage statistics
	UpsertUsageRecords(ctx context.Context, fuel types.FuelType, records []types.UsageRecord) error
	GetUsageHistory(ctx context.Context, fuel types.FuelType, start, end time.Time) ([]types.UsageRecord, error)
	GetLatestUsageTime(ctx context.Context, fuel types.FuelType) (time.Time, error)

	// Poll snapshot
	SetSnapshot(ctx context.Context, snap types.Snapshot) error
	GetSnapshot(ctx context.Context) (types.Snapshot, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
