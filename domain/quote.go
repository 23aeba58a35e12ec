package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const TableQuote = "quote"

// Quote is the top of book read from the latest row of the quote table.
type Quote struct {
	Symbol    string
	Timestamp time.Time
	Bid       decimal.Decimal
	Ask       decimal.Decimal
}

func QuoteFromRecord(r Record) (Quote, error) {
	ts, err := r.Time("timestamp")
	if err != nil {
		return Quote{}, err
	}

	bid, err := r.Decimal("bidPrice")
	if err != nil {
		return Quote{}, err
	}

	ask, err := r.Decimal("askPrice")
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Symbol:    r.Text("symbol"),
		Timestamp: ts,
		Bid:       bid,
		Ask:       ask,
	}, nil
}

// SamePrices reports whether both sides of the book are unchanged.
func (q Quote) SamePrices(other Quote) bool {
	return q.Bid.Equal(other.Bid) && q.Ask.Equal(other.Ask)
}
