package usecase

import (
	"strconv"

	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/spooky-finn/bitmex-pipe-bridge/helpers"
)

// Record type tags, the first field of every pipe record.
const (
	RecordQuote        = "qt"
	RecordCandle       = "cndl"
	RecordOrdersUpdate = "ordersupdt"
	RecordOrderRow     = "ordrtbl"
)

// EncodeQuote renders qt,<symbol>,<unixSeconds>,<bid>,<ask>.
func EncodeQuote(symbol string, q domain.Quote) string {
	return helpers.JoinFields(
		RecordQuote,
		symbol,
		helpers.IntToString(q.Timestamp.Unix()),
		q.Bid.String(),
		q.Ask.String(),
	)
}

// EncodeCandle renders cndl,<symbol>,<bucketStart>,<open>,<high>,<low>,<close>,<rescaledVolume>.
func EncodeCandle(symbol string, c domain.Candle) string {
	return helpers.JoinFields(
		RecordCandle,
		symbol,
		helpers.IntToString(c.BucketStart()),
		c.Open.String(),
		c.High.String(),
		c.Low.String(),
		c.Close.String(),
		helpers.IntToString(c.RescaledVolume()),
	)
}

func EncodeOrdersUpdate(count int) string {
	return helpers.JoinFields(RecordOrdersUpdate, strconv.Itoa(count))
}

func EncodeOrder(o domain.Order) string {
	return helpers.JoinFields(
		RecordOrderRow,
		o.OrderID,
		o.ClOrdID,
		o.ClOrdLinkID,
		o.Account,
		o.Symbol,
		o.Side,
		o.OrderQty,
		o.Price,
		o.OrdType,
		o.OrdStatus,
		o.Triggered,
		o.LeavesQty,
		o.Text,
		o.TransactTime,
	)
}
