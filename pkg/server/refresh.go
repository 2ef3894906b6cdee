package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/genesismon/genesismon/pkg/log"
)

// handleRefresh runs one polling cycle right now and answers with the fresh
// snapshot. A rejected login comes back as 403 so a caller can tell "fix
// the credentials" apart from "the portal is down" (502).
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.poller.ForceRefresh(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "manual refresh failed", slog.Any("error", err))
		writeUpstreamError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(DataResponse{
		Snapshot: snap,
		Poller:   s.poller.Status(),
	}); err != nil {
		panic(http.ErrAbortHandler)
	}
}
