package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/genesismon/genesismon/pkg/log"
)

func (s *Server) handleBookPowerShout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		StartTime      time.Time `json:"startTime"`
		DurationHours  int       `json:"durationHours"`
		CustomerNumber string    `json:"customerNumber"`
		AccountNumber  string    `json:"accountNumber"`
		ICP            string    `json:"icp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StartTime.IsZero() || req.DurationHours <= 0 {
		writeJSONError(w, "startTime and a positive durationHours are required", http.StatusBadRequest)
		return
	}
	if req.CustomerNumber == "" || req.AccountNumber == "" || req.ICP == "" {
		writeJSONError(w, "customerNumber, accountNumber and icp are required", http.StatusBadRequest)
		return
	}

	if err := s.api.BookPowerShout(ctx, req.StartTime, req.DurationHours, req.CustomerNumber, req.AccountNumber, req.ICP); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "powershout booking failed",
			slog.Time("start", req.StartTime),
			slog.Int("hours", req.DurationHours),
			slog.Any("error", err))
		writeUpstreamError(w, err)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "powershout booked",
		slog.Time("start", req.StartTime),
		slog.Int("hours", req.DurationHours))
	w.WriteHeader(http.StatusNoContent)
}
