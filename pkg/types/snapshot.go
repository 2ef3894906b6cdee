package types

import (
	"encoding/json"
	"time"
)

// DataKey names one logical resource fetched from the account API during a
// polling cycle.
type DataKey string

const (
	DataKeyElectricityUsage      DataKey = "electricityUsage"
	DataKeyGasUsage              DataKey = "gasUsage"
	DataKeyEVPlanUsage           DataKey = "evPlanUsage"
	DataKeyPowerShoutInfo        DataKey = "powershoutInfo"
	DataKeyPowerShoutBalance     DataKey = "powershoutBalance"
	DataKeyPowerShoutBookings    DataKey = "powershoutBookings"
	DataKeyPowerShoutOffers      DataKey = "powershoutOffers"
	DataKeyPowerShoutExpiring    DataKey = "powershoutExpiringHours"
	DataKeyBillingPlans          DataKey = "billingPlans"
	DataKeyWidgetHero            DataKey = "widgetHero"
	DataKeyWidgetBillSummary     DataKey = "widgetBillSummary"
	DataKeyWidgetPropertyList    DataKey = "widgetPropertyList"
	DataKeyWidgetPropertySwitch  DataKey = "widgetPropertySwitcher"
	DataKeyWidgetSidekick        DataKey = "widgetSidekick"
	DataKeyWidgetDashPowerShout  DataKey = "widgetDashboardPowershout"
	DataKeyWidgetEcoTracker      DataKey = "widgetEcoTracker"
	DataKeyWidgetDashboardList   DataKey = "widgetDashboardList"
	DataKeyWidgetActionTileList  DataKey = "widgetActionTileList"
	DataKeyNextBestAction        DataKey = "nextBestAction"
	DataKeyGenerationMix         DataKey = "generationMix"
)

// AllDataKeys returns every key fetched in a regular polling cycle.
func AllDataKeys() []DataKey {
	return []DataKey{
		DataKeyElectricityUsage,
		DataKeyGasUsage,
		DataKeyEVPlanUsage,
		DataKeyPowerShoutInfo,
		DataKeyPowerShoutBalance,
		DataKeyPowerShoutBookings,
		DataKeyPowerShoutOffers,
		DataKeyPowerShoutExpiring,
		DataKeyBillingPlans,
		DataKeyWidgetHero,
		DataKeyWidgetBillSummary,
		DataKeyWidgetPropertyList,
		DataKeyWidgetPropertySwitch,
		DataKeyWidgetSidekick,
		DataKeyWidgetDashPowerShout,
		DataKeyWidgetEcoTracker,
		DataKeyWidgetDashboardList,
		DataKeyWidgetActionTileList,
		DataKeyNextBestAction,
		DataKeyGenerationMix,
	}
}

// Snapshot is the merged result of one polling cycle. A nil entry means that
// endpoint failed during the cycle; the rest of the batch is still usable.
type Snapshot struct {
	Timestamp time.Time                   `json:"timestamp"`
	Data      map[DataKey]json.RawMessage `json:"data"`
}
