package domain

import (
	"fmt"
	"strings"
)

// MarketSymbol is an exchange instrument symbol such as XBTUSD.
type MarketSymbol struct {
	value string
}

func NewMarketSymbol(s string) (*MarketSymbol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("symbol must not be empty")
	}

	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return nil, fmt.Errorf("invalid symbol %q", s)
		}
	}

	return &MarketSymbol{value: s}, nil
}

// Topic is the feed subscription topic of table scoped to this symbol.
func (ms *MarketSymbol) Topic(table string) string {
	return fmt.Sprintf("%s:%s", table, ms.value)
}

// Topics joins the topics of all tables with a comma, as the subscribe query expects.
func (ms *MarketSymbol) Topics(tables ...string) string {
	topics := make([]string, 0, len(tables))
	for _, table := range tables {
		topics = append(topics, ms.Topic(table))
	}
	return strings.Join(topics, ",")
}

func (ms *MarketSymbol) String() string {
	return ms.value
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.value == other.value
}
