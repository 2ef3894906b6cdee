package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/genesismon/genesismon/pkg/genesis"
	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/storage"
	"github.com/genesismon/genesismon/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// defaultUsageDays is how many days of usage each regular cycle requests.
// The portal answers usage queries in windows of up to four days.
const defaultUsageDays = 4

// Poller drives the polling cycles: it keeps the session token fresh, fans
// out the data calls, records hourly statistics, and stores the snapshot.
type Poller struct {
	api genesis.API
	db  storage.Database

	interval      time.Duration
	usageDays     int
	backfillPause time.Duration

	mu          sync.RWMutex
	lastSuccess time.Time
	lastErr     error
	needsAuth   bool
}

// Status is the outcome of the most recent polling cycle.
type Status struct {
	LastSuccess time.Time `json:"lastSuccess"`
	LastError   string    `json:"lastError,omitempty"`
	NeedsReauth bool      `json:"needsReauth"`
}

// New returns a Poller with the default interval and usage window. Most
// callers want Configured, which wires these from flags.
func New(api genesis.API, db storage.Database) *Poller {
	return &Poller{
		api:           api,
		db:            db,
		interval:      time.Hour,
		usageDays:     defaultUsageDays,
		backfillPause: backfillPause,
	}
}

// Configured initializes the Poller with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(api genesis.API, db storage.Database) *Poller {
	p := New(api, db)

	interval := lflag.Duration("poll-interval", time.Hour, "How often to poll the account API")
	usageDays := lflag.String("poll-usage-days", strconv.Itoa(defaultUsageDays), "How many days of usage to request each cycle")

	lflag.Do(func() {
		p.interval = *interval
		d, err := strconv.Atoi(*usageDays)
		if err != nil || d <= 0 {
			panic(fmt.Sprintf("invalid poll-usage-days: %s", *usageDays))
		}
		p.usageDays = d
	})

	return p
}

// Run polls on the configured interval until the context is canceled. The
// first cycle runs immediately so a snapshot is available right after
// startup.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "poller stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// ForceRefresh runs one polling cycle immediately.
func (p *Poller) ForceRefresh(ctx context.Context) (types.Snapshot, error) {
	return p.runCycle(ctx)
}

// Status reports the outcome of the most recent polling cycle.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Status{
		LastSuccess: p.lastSuccess,
		NeedsReauth: p.needsAuth,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

func (p *Poller) runCycle(ctx context.Context) (types.Snapshot, error) {
	start := time.Now()
	snap, err := p.FetchAll(ctx)

	p.mu.Lock()
	if err != nil {
		p.lastErr = err
		p.needsAuth = genesis.IsAuthError(err)
	} else {
		p.lastErr = nil
		p.needsAuth = false
		p.lastSuccess = snap.Timestamp
	}
	p.mu.Unlock()

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "polling cycle failed",
			slog.Any("err", err),
			slog.Bool("needsAuth", genesis.IsAuthError(err)))
		return snap, err
	}
	log.Ctx(ctx).InfoContext(ctx, "polling cycle complete",
		slog.Duration("took", time.Since(start)),
		slog.Int("keys", len(snap.Data)))
	return snap, nil
}

// FetchAll runs one polling cycle: a token pre-flight, then every data key
// concurrently. A failure from the token layer is fatal for the whole cycle;
// a single endpoint failure just leaves a nil entry for its key and the rest
// of the batch stays usable.
func (p *Poller) FetchAll(ctx context.Context) (types.Snapshot, error) {
	if err := p.api.EnsureValidToken(ctx); err != nil {
		return types.Snapshot{}, fmt.Errorf("token pre-flight failed: %w", err)
	}

	fetchers := p.fetchers()
	data := make(map[types.DataKey]json.RawMessage, len(fetchers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for key, fetch := range fetchers {
		wg.Add(1)
		go func(key types.DataKey, fetch func(context.Context) (json.RawMessage, error)) {
			defer wg.Done()
			raw, err := fetch(ctx)
			if err != nil {
				// accounts without an EV plan always fail this endpoint
				if key == types.DataKeyEVPlanUsage {
					log.Ctx(ctx).InfoContext(ctx, "ev plan usage unavailable", slog.Any("err", err))
				} else {
					log.Ctx(ctx).WarnContext(ctx, "data fetch failed",
						slog.String("key", string(key)),
						slog.Any("err", err))
				}
				raw = nil
			}
			mu.Lock()
			data[key] = raw
			mu.Unlock()
		}(key, fetch)
	}
	wg.Wait()

	snap := types.Snapshot{
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	if err := p.recordUsage(ctx, types.FuelElectricity, data[types.DataKeyElectricityUsage]); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record electricity statistics", slog.Any("err", err))
	}
	if err := p.recordUsage(ctx, types.FuelGas, data[types.DataKeyGasUsage]); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record gas statistics", slog.Any("err", err))
	}

	if err := p.db.SetSnapshot(ctx, snap); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to store snapshot", slog.Any("err", err))
	}
	return snap, nil
}

func (p *Poller) fetchers() map[types.DataKey]func(context.Context) (json.RawMessage, error) {
	days := p.usageDays
	return map[types.DataKey]func(context.Context) (json.RawMessage, error){
		types.DataKeyElectricityUsage: func(ctx context.Context) (json.RawMessage, error) {
			return p.api.GetElectricityUsage(ctx, days)
		},
		types.DataKeyGasUsage: func(ctx context.Context) (json.RawMessage, error) {
			return p.api.GetGasUsage(ctx, days)
		},
		types.DataKeyEVPlanUsage:          p.api.GetEVPlanUsage,
		types.DataKeyPowerShoutInfo:       p.api.GetPowerShoutInfo,
		types.DataKeyPowerShoutBalance:    p.api.GetPowerShoutBalance,
		types.DataKeyPowerShoutBookings:   p.api.GetPowerShoutBookings,
		types.DataKeyPowerShoutOffers:     p.api.GetPowerShoutOffers,
		types.DataKeyPowerShoutExpiring:   p.api.GetPowerShoutExpiringHours,
		types.DataKeyBillingPlans:         p.api.GetBillingPlans,
		types.DataKeyWidgetHero:           p.api.GetWidgetHero,
		types.DataKeyWidgetBillSummary:    p.api.GetWidgetBillSummary,
		types.DataKeyWidgetPropertyList:   p.api.GetWidgetPropertyList,
		types.DataKeyWidgetPropertySwitch: p.api.GetWidgetPropertySwitcher,
		types.DataKeyWidgetSidekick:       p.api.GetWidgetSidekick,
		types.DataKeyWidgetDashPowerShout: p.api.GetWidgetDashboardPowerShout,
		types.DataKeyWidgetEcoTracker:     p.api.GetWidgetEcoTracker,
		types.DataKeyWidgetDashboardList:  p.api.GetWidgetDashboardList,
		types.DataKeyWidgetActionTileList: p.api.GetWidgetActionTileList,
		types.DataKeyNextBestAction:       p.api.GetNextBestAction,
		types.DataKeyGenerationMix:        p.api.GetGenerationMix,
	}
}
