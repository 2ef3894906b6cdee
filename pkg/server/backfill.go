package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/types"
)

// handleBackfill fetches historical usage going back the requested number
// of days and stores it as statistics. It runs inline: the response only
// comes back once the backfill finished, so keep the window reasonable.
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Days     int    `json:"days"`
		FuelType string `json:"fuelType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Days <= 0 {
		writeJSONError(w, "days must be positive", http.StatusBadRequest)
		return
	}
	if req.FuelType == "" {
		req.FuelType = "both"
	}
	if _, err := types.ParseFuelSelector(req.FuelType); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "starting backfill",
		slog.Int("days", req.Days),
		slog.String("fuelType", req.FuelType))
	if err := s.poller.Backfill(ctx, req.Days, req.FuelType); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "backfill failed", slog.Any("error", err))
		writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
