package bitmex

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSyncAPI(t *testing.T, handler http.HandlerFunc, creds Credentials) *SyncAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api, err := NewSyncAPI(srv.URL+"/api/v1", creds, log.New(io.Discard))
	require.NoError(t, err)
	api.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return api
}

func xbtusd(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbol("XBTUSD")
	require.NoError(t, err)
	return symbol
}

func TestSyncAPI_RecentInstrumentTime(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/instrument", r.URL.Path)
		assert.Equal(t, "XBTUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1", r.URL.Query().Get("count"))
		assert.Empty(t, r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`[{"symbol":"XBTUSD","timestamp":"2024-01-01T00:00:37.123Z"}]`))
	}, Credentials{})

	ts, err := api.RecentInstrumentTime(context.Background(), xbtusd(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1704067237), ts.Unix())
}

func TestSyncAPI_BucketedTrades(t *testing.T) {
	start := time.Unix(1704067200, 0)

	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/trade/bucketed", r.URL.Path)
		assert.Equal(t, "1m", q.Get("binSize"))
		assert.Equal(t, "false", q.Get("partial"))
		assert.Equal(t, "750", q.Get("count"))
		assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("startTime"))
		_, _ = w.Write([]byte(`[
			{"timestamp":"2024-01-01T00:01:00.000Z","symbol":"XBTUSD","open":1,"high":2,"low":0.5,"close":1.5,"volume":100000},
			{"timestamp":"2024-01-01T00:02:00.000Z","symbol":"XBTUSD","open":null,"high":null,"low":null,"close":null,"volume":0}
		]`))
	}, Credentials{})

	candles, err := api.BucketedTrades(context.Background(), xbtusd(t), domain.BinSize1m, 750, start)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1704067200), candles[0].BucketStart())
	assert.Equal(t, int64(2), candles[0].RescaledVolume())
}

func TestSyncAPI_SubmitBulkOrdersIsSigned(t *testing.T) {
	creds := Credentials{Key: "key", Secret: "secret"}

	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, `{"orders":[{"symbol":"XBTUSD","orderQty":1}]}`, string(body))
		assert.Equal(t, "key", r.Header.Get("api-key"))
		assert.Equal(t, "1700000060", r.Header.Get("api-expires"))
		assert.Equal(t,
			Sign("secret", http.MethodPost, "/api/v1/order/bulk", 1_700_000_060, string(body)),
			r.Header.Get("api-signature"))

		_, _ = w.Write([]byte(`[{"orderID":"o-1"}]`))
	}, creds)

	resp, err := api.SubmitBulkOrders(context.Background(), `[{"symbol":"XBTUSD","orderQty":1}]`)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"orderID":"o-1"}]`, string(resp))
}

func TestSyncAPI_SubmitBulkOrdersWrapsNonJSONPayload(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"orders":"not json"}`, string(body))
		_, _ = w.Write([]byte(`[]`))
	}, Credentials{})

	_, err := api.SubmitBulkOrders(context.Background(), "not json")
	require.NoError(t, err)
}

func TestSyncAPI_HTTPError(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid orderQty"}}`))
	}, Credentials{})

	_, err := api.SubmitBulkOrders(context.Background(), `[]`)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "Invalid orderQty")
}
