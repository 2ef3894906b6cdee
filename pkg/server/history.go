package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/types"
)

func (s *Server) handleHistoryUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fuelStr := r.URL.Query().Get("fuel")
	if fuelStr == "" {
		fuelStr = string(types.FuelElectricity)
	}
	fuel := types.FuelType(fuelStr)
	if fuel != types.FuelElectricity && fuel != types.FuelGas {
		writeJSONError(w, fmt.Sprintf("unknown fuel type: %s", fuelStr), http.StatusBadRequest)
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.db.GetUsageHistory(ctx, fuel, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get usage history",
			slog.String("fuel", string(fuel)),
			slog.Any("error", err))
		writeJSONError(w, "failed to get usage history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.UsageRecord{}
	}

	w.Header().Set("Content-Type", "application/json")

	// Set Cache-Control headers
	// If the range ends before today (midnight today), cache for 24 hours.
	// Otherwise, cache for 1 minute.
	today := time.Now().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}

	if err := json.NewEncoder(w).Encode(records); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to the last 7 days if not specified
		end := time.Now()
		start := end.AddDate(0, 0, -7)
		return start, end, nil
	}

	start, err := parseTimeParam(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := parseTimeParam(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > 366*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed a year")
	}

	return start, end, nil
}

// parseTimeParam accepts RFC3339 or a bare date.
func parseTimeParam(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
