package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genesismon/genesismon/pkg/genesis"
	"github.com/genesismon/genesismon/pkg/storage/storagemock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleBackfill(t *testing.T) {
	post := func(srv *Server, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/backfill", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)
		return w
	}

	// empty portal answers keep the statistics path quiet so these tests
	// stay focused on the HTTP surface
	emptyUsage := func(start, end time.Time) (json.RawMessage, error) {
		return json.RawMessage(`{"usage":[]}`), nil
	}

	t.Run("SingleFuel", func(t *testing.T) {
		api := genesis.NewMock()
		api.ElectricityRange = emptyUsage
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"days":4,"fuelType":"electricity"}`)
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, api.Calls("electricityRange"))
		assert.Equal(t, 0, api.Calls("gasRange"))
	})

	t.Run("DefaultsToBothFuels", func(t *testing.T) {
		api := genesis.NewMock()
		api.ElectricityRange = emptyUsage
		api.GasRange = emptyUsage
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"days":4}`)
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, api.Calls("electricityRange"))
		assert.Equal(t, 1, api.Calls("gasRange"))
	})

	t.Run("NonPositiveDays", func(t *testing.T) {
		api := genesis.NewMock()
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"days":0,"fuelType":"electricity"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, api.Calls("ensure"))
	})

	t.Run("UnknownFuel", func(t *testing.T) {
		api := genesis.NewMock()
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"days":4,"fuelType":"water"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, api.Calls("ensure"))
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		srv := newTestServer(genesis.NewMock(), new(storagemock.MockDatabase))
		w := post(srv, `{"days":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("AuthFailure", func(t *testing.T) {
		api := genesis.NewMock()
		api.EnsureErr = &genesis.AuthError{Reason: "credentials rejected"}
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"days":4,"fuelType":"electricity"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, 0, api.Calls("electricityRange"))
	})
}
