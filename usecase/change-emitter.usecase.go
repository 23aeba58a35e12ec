package usecase

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	promclient "github.com/spooky-finn/bitmex-pipe-bridge/infrastructure/prometheus"
)

// TableSource gives read/write access to the synchronized tables.
type TableSource interface {
	Table(name string) (*domain.KeyedTable, bool)
}

// ChangeEmitter turns table mutations into pipe records. It runs on the feed
// pump goroutine, right after the synchronizer applied the message.
type ChangeEmitter struct {
	symbol *domain.MarketSymbol
	pipe   domain.PipeChannel
	tables TableSource
	logger *log.Logger

	lastQuote       *domain.Quote
	candleWatermark int64
}

func NewChangeEmitter(
	symbol *domain.MarketSymbol,
	pipe domain.PipeChannel,
	tables TableSource,
	logger *log.Logger,
) *ChangeEmitter {
	return &ChangeEmitter{
		symbol: symbol,
		pipe:   pipe,
		tables: tables,
		logger: logger.WithPrefix("emitter"),
	}
}

// SetCandleWatermark records the last bucket sent by the history backfill.
// Live candles at or before it are not sent again.
func (e *ChangeEmitter) SetCandleWatermark(bucketStart int64) {
	e.candleWatermark = bucketStart
}

func (e *ChangeEmitter) OnMutation(m domain.Mutation) error {
	table, ok := e.tables.Table(m.Table)
	if !ok {
		return nil
	}
	promclient.TableRows.WithLabelValues(m.Table).Set(float64(table.Len()))

	switch m.Table {
	case domain.TableQuote:
		return e.emitQuote(table, m.Action)
	case domain.TableTradeBin1m:
		return e.emitCandle(table)
	case domain.TableOrder:
		return e.emitOrders(table)
	}
	return nil
}

func (e *ChangeEmitter) emitQuote(table *domain.KeyedTable, action string) error {
	row, ok := table.Latest()
	if !ok {
		return nil
	}

	quote, err := domain.QuoteFromRecord(row)
	if err != nil {
		promclient.FeedAnomalies.WithLabelValues("bad_quote").Inc()
		e.logger.Warn("skipping unreadable quote", "err", err)
		return nil
	}

	// the snapshot only sets the baseline prices
	if action == domain.ActionPartial {
		e.lastQuote = &quote
		return nil
	}

	if e.lastQuote != nil && e.lastQuote.SamePrices(quote) {
		return nil
	}
	e.lastQuote = &quote

	return e.send(RecordQuote, EncodeQuote(e.symbol.String(), quote))
}

func (e *ChangeEmitter) emitCandle(table *domain.KeyedTable) error {
	row, ok := table.Latest()
	if !ok {
		return nil
	}

	candle, err := domain.CandleFromRecord(row)
	if err != nil {
		promclient.FeedAnomalies.WithLabelValues("bad_candle").Inc()
		e.logger.Warn("skipping unreadable candle", "err", err)
		return nil
	}

	if e.candleWatermark != 0 && candle.BucketStart() <= e.candleWatermark {
		e.logger.Debug("candle already sent by backfill", "bucket", candle.BucketStart())
		return nil
	}

	return e.send(RecordCandle, EncodeCandle(e.symbol.String(), candle))
}

// emitOrders sends the whole order table, then purges terminal orders.
// A terminal order is therefore reported exactly once more before it disappears.
func (e *ChangeEmitter) emitOrders(table *domain.KeyedTable) error {
	rows := table.Rows()
	if len(rows) == 0 {
		return nil
	}

	if err := e.send(RecordOrdersUpdate, EncodeOrdersUpdate(len(rows))); err != nil {
		return err
	}

	for _, row := range rows {
		msg := EncodeOrder(domain.OrderFromRecord(row))
		if err := e.send(RecordOrderRow, msg); err != nil {
			return err
		}
		e.logger.Info(msg)
	}

	if purged := table.RemoveWhere(domain.IsTerminalOrder); len(purged) > 0 {
		e.logger.Debug("purged terminal orders", "count", len(purged))
		promclient.TableRows.WithLabelValues(table.Name()).Set(float64(table.Len()))
	}
	return nil
}

func (e *ChangeEmitter) send(kind, msg string) error {
	if err := e.pipe.Send(msg); err != nil {
		return fmt.Errorf("failed to emit %s record: %w", kind, err)
	}
	promclient.RecordsEmitted.WithLabelValues(kind).Inc()
	e.logger.Debug("emitted", "record", msg)
	return nil
}
