package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Record is a single row of a feed table. Values keep the shape they had on the
// wire: numbers are json.Number, so prices are re-emitted exactly as received.
type Record map[string]any

// KeySpec is the ordered set of fields that identifies a row within its table.
type KeySpec []string

var ErrFieldMissing = errors.New("record field is missing")

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every field of partial into r.
func (r Record) Merge(partial Record) {
	for k, v := range partial {
		r[k] = v
	}
}

// Matches reports whether every key field of r equals the same field of partial.
// An empty KeySpec identifies nothing.
func (r Record) Matches(keys KeySpec, partial Record) bool {
	if len(keys) == 0 {
		return false
	}

	for _, key := range keys {
		want, ok := partial[key]
		if !ok {
			return false
		}
		if !valuesEqual(r[key], want) {
			return false
		}
	}

	return true
}

// Text renders a field the way it goes out on the pipe. Missing and null fields are empty.
func (r Record) Text(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) Decimal(field string) (decimal.Decimal, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}

	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %s: %w", field, err)
	}
	return d, nil
}

// Time parses an ISO-8601 timestamp field such as 2024-01-02T15:04:05.000Z.
func (r Record) Time(field string) (time.Time, error) {
	s, ok := r[field].(string)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}

	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", field, err)
	}
	return ts.UTC(), nil
}

// DecodeRecords parses a JSON array of rows, keeping numbers as json.Number.
func DecodeRecords(raw []byte) ([]Record, error) {
	var rows []Record
	if err := decodeUseNumber(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return decimal.Zero, fmt.Errorf("value %v is not numeric", v)
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if _, isStr := a.(string); !isStr {
		da, errA := toDecimal(a)
		db, errB := toDecimal(b)
		if errA == nil && errB == nil {
			return da.Equal(db)
		}
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}
