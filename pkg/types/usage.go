package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// FuelType identifies which metered fuel a usage record belongs to.
type FuelType string

const (
	FuelElectricity FuelType = "electricity"
	FuelGas         FuelType = "gas"
)

// ParseFuelSelector expands a fuel selector into the fuels it covers.
// "both" covers electricity and gas.
func ParseFuelSelector(s string) ([]FuelType, error) {
	switch s {
	case string(FuelElectricity):
		return []FuelType{FuelElectricity}, nil
	case string(FuelGas):
		return []FuelType{FuelGas}, nil
	case "both":
		return []FuelType{FuelElectricity, FuelGas}, nil
	}
	return nil, fmt.Errorf("unknown fuel type: %s", s)
}

// UsageRecord is one hour of metered consumption along with the running
// totals since the first recorded hour for that fuel.
type UsageRecord struct {
	TSHourStart time.Time `json:"tsHourStart"`
	KWH         float64   `json:"kwh"`
	CostNZD     float64   `json:"costNZD"`
	SumKWH      float64   `json:"sumKWH"`
	SumCostNZD  float64   `json:"sumCostNZD"`
}

// UsageEntry is one interval of the portal's raw usage payload. StartDate is
// kept as the portal sends it (ISO 8601 with a local offset).
type UsageEntry struct {
	StartDate string  `json:"startDate"`
	KW        float64 `json:"kw"`
	CostNZD   float64 `json:"costNZD"`
}

// ParseUsagePayload decodes the usage response both fuel endpoints share.
// An empty payload decodes to no entries.
func ParseUsagePayload(raw json.RawMessage) ([]UsageEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload struct {
		Usage []UsageEntry `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode usage payload: %w", err)
	}
	return payload.Usage, nil
}
