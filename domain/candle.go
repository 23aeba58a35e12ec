package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TableTradeBin1m = "tradeBin1m"

	BinSize1m = "1m"

	bucketSeconds = 60
	volumeDivisor = 100000
)

// Candle is a one minute bar. Timestamp is the bar close time as reported by the exchange.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

func CandleFromRecord(r Record) (Candle, error) {
	ts, err := r.Time("timestamp")
	if err != nil {
		return Candle{}, err
	}

	c := Candle{Symbol: r.Text("symbol"), Timestamp: ts}
	fields := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &c.Open},
		{"high", &c.High},
		{"low", &c.Low},
		{"close", &c.Close},
		{"volume", &c.Volume},
	}

	for _, f := range fields {
		v, err := r.Decimal(f.name)
		if err != nil {
			return Candle{}, err
		}
		*f.dst = v
	}

	return c, nil
}

// BucketStart is the open time of the bar, in unix seconds.
func (c Candle) BucketStart() int64 {
	return BucketStart(c.Timestamp.Unix())
}

func (c Candle) RescaledVolume() int64 {
	return RescaleVolume(c.Volume)
}

// BucketStart maps a reported bar close time to the bar open time:
// floor(ts/60)*60 - 60.
func BucketStart(closeUnix int64) int64 {
	bucket := closeUnix / bucketSeconds
	if closeUnix < 0 && closeUnix%bucketSeconds != 0 {
		bucket--
	}
	return bucket*bucketSeconds - bucketSeconds
}

// RescaleVolume is the lossy volume normalization the consumer expects:
// floor(v/100000) + 1.
func RescaleVolume(v decimal.Decimal) int64 {
	return v.Div(decimal.NewFromInt(volumeDivisor)).Floor().IntPart() + 1
}
