package genesis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/genesismon/genesismon/pkg/types"
)

// Mock is an in-memory API for tests. Responses and Errs are keyed by data
// key; a key with neither answers (nil, nil). Every call is counted and the
// counts are retrievable via Calls.
type Mock struct {
	mu    sync.Mutex
	calls map[string]int

	EnsureErr error
	BookErr   error
	Responses map[types.DataKey]json.RawMessage
	Errs      map[types.DataKey]error

	// ElectricityRange and GasRange intercept the ranged usage calls used
	// by backfills; when nil the Responses entry for the fuel's usage key
	// answers instead.
	ElectricityRange func(start, end time.Time) (json.RawMessage, error)
	GasRange         func(start, end time.Time) (json.RawMessage, error)

	bookings []BookingCall
}

// BookingCall records the arguments of one BookPowerShout call.
type BookingCall struct {
	Start          time.Time
	DurationHours  int
	CustomerNumber string
	AccountNumber  string
	ICP            string
}

var _ API = (*Mock)(nil)

// NewMock returns an empty Mock ready to have Responses and Errs filled in.
func NewMock() *Mock {
	return &Mock{
		calls:     map[string]int{},
		Responses: map[types.DataKey]json.RawMessage{},
		Errs:      map[types.DataKey]error{},
	}
}

// Calls returns how many times the named call ran. Data calls count under
// their data key, the rest under "ensure", "book", "electricityRange" and
// "gasRange".
func (m *Mock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Bookings returns a copy of the recorded BookPowerShout calls.
func (m *Mock) Bookings() []BookingCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BookingCall(nil), m.bookings...)
}

func (m *Mock) bump(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *Mock) serve(key types.DataKey) (json.RawMessage, error) {
	m.bump(string(key))
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errs[key]; err != nil {
		return nil, err
	}
	return m.Responses[key], nil
}

func (m *Mock) EnsureValidToken(ctx context.Context) error {
	m.bump("ensure")
	return m.EnsureErr
}

func (m *Mock) GetElectricityUsage(ctx context.Context, days int) (json.RawMessage, error) {
	return m.serve(types.DataKeyElectricityUsage)
}

func (m *Mock) GetElectricityUsageRange(ctx context.Context, start, end time.Time) (json.RawMessage, error) {
	m.bump("electricityRange")
	if m.ElectricityRange != nil {
		return m.ElectricityRange(start, end)
	}
	return m.Responses[types.DataKeyElectricityUsage], nil
}

func (m *Mock) GetGasUsage(ctx context.Context, days int) (json.RawMessage, error) {
	return m.serve(types.DataKeyGasUsage)
}

func (m *Mock) GetGasUsageRange(ctx context.Context, start, end time.Time) (json.RawMessage, error) {
	m.bump("gasRange")
	if m.GasRange != nil {
		return m.GasRange(start, end)
	}
	return m.Responses[types.DataKeyGasUsage], nil
}

func (m *Mock) GetEVPlanUsage(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyEVPlanUsage)
}

func (m *Mock) GetPowerShoutInfo(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyPowerShoutInfo)
}

func (m *Mock) GetPowerShoutBalance(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyPowerShoutBalance)
}

func (m *Mock) GetPowerShoutBookings(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyPowerShoutBookings)
}

func (m *Mock) GetPowerShoutOffers(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyPowerShoutOffers)
}

func (m *Mock) GetPowerShoutExpiringHours(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyPowerShoutExpiring)
}

func (m *Mock) BookPowerShout(ctx context.Context, start time.Time, durationHours int, customerNumber, accountNumber, icp string) error {
	m.mu.Lock()
	m.calls["book"]++
	m.bookings = append(m.bookings, BookingCall{
		Start:          start,
		DurationHours:  durationHours,
		CustomerNumber: customerNumber,
		AccountNumber:  accountNumber,
		ICP:            icp,
	})
	m.mu.Unlock()
	return m.BookErr
}

func (m *Mock) GetBillingPlans(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyBillingPlans)
}

func (m *Mock) GetNextBestAction(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyNextBestAction)
}

func (m *Mock) GetGenerationMix(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyGenerationMix)
}

func (m *Mock) GetWidgetHero(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetHero)
}

func (m *Mock) GetWidgetBillSummary(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetBillSummary)
}

func (m *Mock) GetWidgetPropertyList(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetPropertyList)
}

func (m *Mock) GetWidgetPropertySwitcher(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetPropertySwitch)
}

func (m *Mock) GetWidgetSidekick(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetSidekick)
}

func (m *Mock) GetWidgetDashboardPowerShout(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetDashPowerShout)
}

func (m *Mock) GetWidgetEcoTracker(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetEcoTracker)
}

func (m *Mock) GetWidgetDashboardList(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetDashboardList)
}

func (m *Mock) GetWidgetActionTileList(ctx context.Context) (json.RawMessage, error) {
	return m.serve(types.DataKeyWidgetActionTileList)
}
