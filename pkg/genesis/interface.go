package genesis

import (
	"context"
	"encoding/json"
	"time"
)

// API is the surface of the Genesis Energy portal consumed by the rest of
// the daemon. *Client implements it; tests substitute mocks.
//
// Endpoint payloads vary in shape and the portal changes them without
// notice, so data calls return raw JSON and shape validation stays with
// each consumer.
type API interface {
	// EnsureValidToken guarantees a usable access token is cached,
	// refreshing or logging in as needed.
	EnsureValidToken(ctx context.Context) error

	GetElectricityUsage(ctx context.Context, days int) (json.RawMessage, error)
	GetElectricityUsageRange(ctx context.Context, start, end time.Time) (json.RawMessage, error)
	GetGasUsage(ctx context.Context, days int) (json.RawMessage, error)
	GetGasUsageRange(ctx context.Context, start, end time.Time) (json.RawMessage, error)
	GetEVPlanUsage(ctx context.Context) (json.RawMessage, error)

	GetPowerShoutInfo(ctx context.Context) (json.RawMessage, error)
	GetPowerShoutBalance(ctx context.Context) (json.RawMessage, error)
	GetPowerShoutBookings(ctx context.Context) (json.RawMessage, error)
	GetPowerShoutOffers(ctx context.Context) (json.RawMessage, error)
	GetPowerShoutExpiringHours(ctx context.Context) (json.RawMessage, error)

	// BookPowerShout reserves a free-power window.
	BookPowerShout(ctx context.Context, start time.Time, durationHours int, customerNumber, accountNumber, icp string) error

	GetBillingPlans(ctx context.Context) (json.RawMessage, error)
	GetNextBestAction(ctx context.Context) (json.RawMessage, error)
	GetGenerationMix(ctx context.Context) (json.RawMessage, error)

	GetWidgetHero(ctx context.Context) (json.RawMessage, error)
	GetWidgetBillSummary(ctx context.Context) (json.RawMessage, error)
	GetWidgetPropertyList(ctx context.Context) (json.RawMessage, error)
	GetWidgetPropertySwitcher(ctx context.Context) (json.RawMessage, error)
	GetWidgetSidekick(ctx context.Context) (json.RawMessage, error)
	GetWidgetDashboardPowerShout(ctx context.Context) (json.RawMessage, error)
	GetWidgetEcoTracker(ctx context.Context) (json.RawMessage, error)
	GetWidgetDashboardList(ctx context.Context) (json.RawMessage, error)
	GetWidgetActionTileList(ctx context.Context) (json.RawMessage, error)
}
