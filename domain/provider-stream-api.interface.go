package domain

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrConnectTimeout  = errors.New("feed connect timeout")
	ErrSnapshotTimeout = errors.New("timed out waiting for table snapshots")
	ErrFeedError       = errors.New("feed reported an error")
)

// FeedSocket dials the exchange realtime feed.
type FeedSocket interface {
	Dial(ctx context.Context, url string, header http.Header) (FeedConn, error)
}

// FeedConn yields raw JSON feed messages until it is closed or fails.
type FeedConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type ProviderHistoryAPI interface {
	// RecentInstrumentTime is the timestamp of the latest instrument state.
	RecentInstrumentTime(ctx context.Context, symbol *MarketSymbol) (time.Time, error)
	BucketedTrades(ctx context.Context, symbol *MarketSymbol, binSize string, count int, start time.Time) ([]Candle, error)
}

type ProviderOrderAPI interface {
	// SubmitBulkOrders forwards a raw order payload and returns the raw exchange response.
	SubmitBulkOrders(ctx context.Context, payload string) ([]byte, error)
}

type ProviderSyncAPI interface {
	ProviderHistoryAPI
	ProviderOrderAPI
}
