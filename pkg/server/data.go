package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/poller"
	"github.com/genesismon/genesismon/pkg/types"
)

// DataResponse is the latest snapshot together with the polling cycle
// metadata, so one call tells a consumer both what the account looks like
// and whether that picture is current.
type DataResponse struct {
	types.Snapshot
	Poller poller.Status `json:"poller"`
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.db.GetSnapshot(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get snapshot", slog.Any("error", err))
		writeJSONError(w, "failed to get snapshot", http.StatusInternalServerError)
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

func (s *Server) handleGetDataKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := types.DataKey(r.PathValue("key"))
	if !validDataKey(key) {
		writeJSONError(w, fmt.Sprintf("unknown data key: %s", key), http.StatusNotFound)
		return
	}

	snap, err := s.db.GetSnapshot(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get snapshot", slog.Any("error", err))
		writeJSONError(w, "failed to get snapshot", http.StatusInternalServerError)
		return
	}

	// a nil entry round-trips through storage as a literal null
	raw := snap.Data[key]
	if len(raw) == 0 || string(raw) == "null" {
		// known key, but the last cycle had nothing for it (or no cycle ran)
		writeJSONError(w, fmt.Sprintf("no data for key: %s", key), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(raw); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func validDataKey(key types.DataKey) bool {
	for _, k := range types.AllDataKeys() {
		if k == key {
			return true
		}
	}
	return false
}
