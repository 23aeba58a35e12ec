package bitmex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
)

const requestTimeout = 10 * time.Second

// HTTPError is a non 2xx answer of the REST API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bitmex rest: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// SyncAPI is the signed REST client used for history and order submission.
type SyncAPI struct {
	baseURL *url.URL
	creds   Credentials
	client  *http.Client
	logger  *log.Logger
	now     func() time.Time
}

func NewSyncAPI(baseURL string, creds Credentials, logger *log.Logger) (*SyncAPI, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid rest url %q: %w", baseURL, err)
	}

	return &SyncAPI{
		baseURL: u,
		creds:   creds,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.WithPrefix("rest"),
		now:     time.Now,
	}, nil
}

func (api *SyncAPI) RecentInstrumentTime(ctx context.Context, symbol *domain.MarketSymbol) (time.Time, error) {
	query := url.Values{}
	query.Set("symbol", symbol.String())
	query.Set("count", "1")
	query.Set("reverse", "false")

	body, err := api.do(ctx, http.MethodGet, "/instrument", query, nil)
	if err != nil {
		return time.Time{}, err
	}

	rows, err := domain.DecodeRecords(body)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode instrument: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, fmt.Errorf("instrument %s not found", symbol)
	}

	return rows[0].Time("timestamp")
}

func (api *SyncAPI) BucketedTrades(
	ctx context.Context,
	symbol *domain.MarketSymbol,
	binSize string,
	count int,
	start time.Time,
) ([]domain.Candle, error) {
	query := url.Values{}
	query.Set("binSize", binSize)
	query.Set("partial", "false")
	query.Set("symbol", symbol.String())
	query.Set("count", strconv.Itoa(count))
	query.Set("reverse", "false")
	query.Set("startTime", start.UTC().Format(time.RFC3339))

	body, err := api.do(ctx, http.MethodGet, "/trade/bucketed", query, nil)
	if err != nil {
		return nil, err
	}

	rows, err := domain.DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bucketed trades: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := domain.CandleFromRecord(row)
		if err != nil {
			api.logger.Warn("skipping unreadable bucket", "err", err, "timestamp", row.Text("timestamp"))
			continue
		}
		candles = append(candles, c)
	}

	return candles, nil
}

// SubmitBulkOrders posts {"orders": payload}. A payload that is already JSON
// is embedded as is, anything else is sent as a JSON string.
func (api *SyncAPI) SubmitBulkOrders(ctx context.Context, payload string) ([]byte, error) {
	var orders any = payload
	if json.Valid([]byte(payload)) {
		orders = json.RawMessage(payload)
	}

	body, err := json.Marshal(map[string]any{"orders": orders})
	if err != nil {
		return nil, fmt.Errorf("failed to encode orders: %w", err)
	}

	return api.do(ctx, http.MethodPost, "/order/bulk", nil, body)
}

func (api *SyncAPI) do(ctx context.Context, method, endpoint string, query url.Values, body []byte) ([]byte, error) {
	path := api.baseURL.Path + endpoint
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	target := *api.baseURL
	target.Path = ""
	target.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, method, target.String()+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range api.creds.Headers(method, path, string(body), api.now()) {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	api.logger.Debug("request", "method", method, "path", path)

	resp, err := api.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
