package model

import (
	"math"
	"time"
)

// Source tags of the known raw feeds.
const (
	SourceSecFull = "bhav_sec" // consolidated sec_bhavdata_full report
	SourceLegacy  = "bhav_old" // legacy daily bulletin joined with delivery data
)

// PriceRecord is one trading day's OHLCV-plus-delivery snapshot for one
// security. The tuple (Symbol, Series, Date) is the natural key: after the
// merge step at most one canonical row exists per key.
//
// Price fields that a source omitted are NaN, never zero, so a missing price
// cannot be mistaken for a real one. Delivery fields default to 0 because the
// legacy bulletin feed does not report them at all.
type PriceRecord struct {
	Symbol string
	Series string
	Date   time.Time // calendar date, normalized to midnight UTC

	PrevClose float64
	Open      float64
	High      float64
	Low       float64
	Last      float64
	Close     float64
	AvgPrice  float64

	TotalTradedQty int64
	TurnoverLacs   float64 // turnover in lakhs of the quote currency
	TradeCount     int64
	DeliveredQty   int64
	DeliveredPct   float64

	// SourceTag identifies the raw feed that produced this row. It drives
	// merge precedence and carries no business meaning.
	SourceTag string
}

// AdjustedPriceRecord is a PriceRecord plus the corporate-action adjustment
// derived from it. AdjustedClose is always Close * CumulativeFactor.
type AdjustedPriceRecord struct {
	PriceRecord
	CumulativeFactor float64
	AdjustedClose    float64
}

// RecordKey is the natural key of a PriceRecord.
type RecordKey struct {
	Symbol string
	Series string
	Date   string // YYYY-MM-DD
}

// Key returns the natural key of the record.
func (r *PriceRecord) Key() RecordKey {
	return RecordKey{Symbol: r.Symbol, Series: r.Series, Date: r.Date.Format("2006-01-02")}
}

// EqualValues reports whether two records carry identical data, ignoring
// SourceTag. NaN fields compare equal to NaN so that two feeds both omitting
// a price still count as an exact duplicate.
func (r *PriceRecord) EqualValues(o *PriceRecord) bool {
	return r.Symbol == o.Symbol &&
		r.Series == o.Series &&
		r.Date.Equal(o.Date) &&
		floatEq(r.PrevClose, o.PrevClose) &&
		floatEq(r.Open, o.Open) &&
		floatEq(r.High, o.High) &&
		floatEq(r.Low, o.Low) &&
		floatEq(r.Last, o.Last) &&
		floatEq(r.Close, o.Close) &&
		floatEq(r.AvgPrice, o.AvgPrice) &&
		r.TotalTradedQty == o.TotalTradedQty &&
		floatEq(r.TurnoverLacs, o.TurnoverLacs) &&
		r.TradeCount == o.TradeCount &&
		r.DeliveredQty == o.DeliveredQty &&
		floatEq(r.DeliveredPct, o.DeliveredPct)
}

func floatEq(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Day builds a calendar date at midnight UTC.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
