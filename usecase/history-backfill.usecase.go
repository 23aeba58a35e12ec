package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	promclient "github.com/spooky-finn/bitmex-pipe-bridge/infrastructure/prometheus"
)

var ErrNoHistory = errors.New("no historical candles returned")

type HistoryBackfillConfig struct {
	Bars       int
	MarginBars int
	MaxTries   uint
	// NewBackOff builds the retry policy for every REST call. Defaults to exponential.
	NewBackOff func() backoff.BackOff
}

// HistoryBackfillUseCase sends the recent one minute candles before the live feed starts.
type HistoryBackfillUseCase struct {
	api    domain.ProviderHistoryAPI
	pipe   domain.PipeChannel
	symbol *domain.MarketSymbol
	config HistoryBackfillConfig
	logger *log.Logger
}

func NewHistoryBackfillUseCase(
	api domain.ProviderHistoryAPI,
	pipe domain.PipeChannel,
	symbol *domain.MarketSymbol,
	config HistoryBackfillConfig,
	logger *log.Logger,
) *HistoryBackfillUseCase {
	if config.MaxTries == 0 {
		config.MaxTries = 3
	}
	if config.NewBackOff == nil {
		config.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}

	return &HistoryBackfillUseCase{
		api:    api,
		pipe:   pipe,
		symbol: symbol,
		config: config,
		logger: logger.WithPrefix("backfill"),
	}
}

// HistoryStart is the first bucket to request: the minute of the latest
// instrument update, moved back by bars-margin whole minutes.
func HistoryStart(latest time.Time, bars, marginBars int) time.Time {
	minute := latest.Unix() / 60 * 60
	return time.Unix(minute-int64(bars-marginBars)*60, 0).UTC()
}

// Run emits the historical candles in exchange order and returns the bucket
// start of the last one sent.
func (u *HistoryBackfillUseCase) Run(ctx context.Context) (int64, error) {
	latest, err := backoff.Retry(ctx, func() (time.Time, error) {
		return u.api.RecentInstrumentTime(ctx, u.symbol)
	}, u.retryOptions()...)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest instrument time: %w", err)
	}

	start := HistoryStart(latest, u.config.Bars, u.config.MarginBars)
	u.logger.Info("requesting history", "symbol", u.symbol, "start", start, "bars", u.config.Bars)

	candles, err := backoff.Retry(ctx, func() ([]domain.Candle, error) {
		return u.api.BucketedTrades(ctx, u.symbol, domain.BinSize1m, u.config.Bars, start)
	}, u.retryOptions()...)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch bucketed trades: %w", err)
	}
	if len(candles) == 0 {
		return 0, ErrNoHistory
	}

	var last int64
	for _, c := range candles {
		if err := u.pipe.Send(EncodeCandle(u.symbol.String(), c)); err != nil {
			return last, fmt.Errorf("failed to emit historical candle: %w", err)
		}
		promclient.RecordsEmitted.WithLabelValues(RecordCandle).Inc()
		last = max(last, c.BucketStart())
	}

	u.logger.Info("history sent", "candles", len(candles), "last_bucket", last)
	return last, nil
}

func (u *HistoryBackfillUseCase) retryOptions() []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(u.config.NewBackOff()),
		backoff.WithMaxTries(u.config.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			u.logger.Warn("history request failed, retrying", "err", err, "in", next)
		}),
	}
}
