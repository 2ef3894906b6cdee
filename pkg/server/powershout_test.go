package server

import (
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

func TestHandleBookPowerShout(t *testing.T) {
	post := func(srv *Server, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/powershout/book", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)
		return w
	}

	t.Run("Success", func(t *testing.T) {
		api := genesis.NewMock()
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{
			"startTime": "2025-08-25T18:00:00Z",
			"durationHours": 2,
			"customerNumber": "cust-1",
			"accountNumber": "acct-2",
			"icp": "icp-3"
		}`)
		require.Equal(t, http.StatusNoContent, w.Code)

		bookings := api.Bookings()
		require.Len(t, bookings, 1)
		assert.True(t, bookings[0].Start.Equal(time.Date(2025, 8, 25, 18, 0, 0, 0, time.UTC)))
		assert.Equal(t, 2, bookings[0].DurationHours)
		assert.Equal(t, "cust-1", bookings[0].CustomerNumber)
		assert.Equal(t, "acct-2", bookings[0].AccountNumber)
		assert.Equal(t, "icp-3", bookings[0].ICP)
	})

	t.Run("MissingStartTime", func(t *testing.T) {
		api := genesis.NewMock()
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"durationHours":1,"customerNumber":"c","accountNumber":"a","icp":"i"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, api.Bookings())
	})

	t.Run("MissingIdentifiers", func(t *testing.T) {
		api := genesis.NewMock()
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"startTime":"2025-08-25T18:00:00Z","durationHours":1,"customerNumber":"c"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, api.Bookings())
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		api := genesis.NewMock()
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"startTime":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("AuthFailure", func(t *testing.T) {
		api := genesis.NewMock()
		api.BookErr = &genesis.AuthError{Reason: "credentials rejected"}
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"startTime":"2025-08-25T18:00:00Z","durationHours":1,"customerNumber":"c","accountNumber":"a","icp":"i"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("PortalError", func(t *testing.T) {
		api := genesis.NewMock()
		api.BookErr = &genesis.APIError{StatusCode: 422, Body: "no hours left"}
		srv := newTestServer(api, new(storagemock.MockDatabase))

		w := post(srv, `{"startTime":"2025-08-25T18:00:00Z","durationHours":1,"customerNumber":"c","accountNumber":"a","icp":"i"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
