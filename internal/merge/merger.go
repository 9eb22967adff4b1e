// Package merge combines normalized price batches from heterogeneous feeds
// into one canonical series with unique (symbol, series, date) keys.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"BhavEngine/internal/model"
)

// Batch is one normalized raw feed: a name for diagnostics, the source tag
// used for precedence, and the records it contributed.
type Batch struct {
	Name      string
	SourceTag string
	Records   []model.PriceRecord
}

// DefaultPrecedence ranks source tags from most to least authoritative. The
// consolidated feed wins over the legacy bulletin on key collisions, matching
// the insert order of the upstream dataset this replaces.
var DefaultPrecedence = []string{model.SourceSecFull, model.SourceLegacy}

// Result is the outcome of one merge: the canonical rows sorted by symbol,
// series and date, the quality signals raised on conflicting duplicates, and
// the count of malformed rows rejected before grouping.
type Result struct {
	Records   []model.PriceRecord
	Signals   []model.QualitySignal
	Malformed int
}

// Merge resolves the batches into one canonical series. Precedence is over
// source tags; tags absent from the precedence list rank below all listed
// ones, and ties resolve to the earlier batch in input order. Rows with a
// blank symbol or series are dropped and counted. Exact duplicates collapse
// silently; duplicates that disagree on close or traded quantity are resolved
// by precedence and recorded as quality signals.
//
// The merge is a pure function of its inputs: no batch is mutated, and for a
// fixed precedence the winning row per key does not depend on batch order.
func Merge(batches []Batch, precedence []string) (*Result, error) {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	rank := make(map[string]int, len(precedence))
	for i, tag := range precedence {
		rank[tag] = i
	}
	rankOf := func(tag string) int {
		if r, ok := rank[tag]; ok {
			return r
		}
		return len(precedence)
	}

	type held struct {
		rec  model.PriceRecord
		rank int
	}
	byKey := make(map[model.RecordKey]held)
	res := &Result{}

	for _, b := range batches {
		if b.SourceTag == "" {
			return nil, fmt.Errorf("batch %q: missing source tag", b.Name)
		}
		r := rankOf(b.SourceTag)
		for _, rec := range b.Records {
			if strings.TrimSpace(rec.Symbol) == "" || strings.TrimSpace(rec.Series) == "" {
				res.Malformed++
				continue
			}
			if rec.SourceTag == "" {
				rec.SourceTag = b.SourceTag
			}
			key := rec.Key()
			cur, ok := byKey[key]
			if !ok {
				byKey[key] = held{rec: rec, rank: r}
				continue
			}

			kept, dropped := cur.rec, rec
			if r < cur.rank {
				kept, dropped = rec, cur.rec
				byKey[key] = held{rec: rec, rank: r}
			}
			if kept.EqualValues(&dropped) {
				continue
			}
			res.Signals = append(res.Signals, conflictSignals(&kept, &dropped)...)
		}
	}

	res.Records = make([]model.PriceRecord, 0, len(byKey))
	for _, h := range byKey {
		res.Records = append(res.Records, h.rec)
	}
	sort.Slice(res.Records, func(i, j int) bool {
		a, b := &res.Records[i], &res.Records[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		return a.Date.Before(b.Date)
	})
	return res, nil
}

// conflictSignals reports disagreements on close price and traded quantity
// between the retained and discarded row for one key. Disagreements on other
// fields are resolved silently by precedence.
func conflictSignals(kept, dropped *model.PriceRecord) []model.QualitySignal {
	var sigs []model.QualitySignal
	if kept.Close != dropped.Close && !(kept.Close != kept.Close && dropped.Close != dropped.Close) {
		sigs = append(sigs, model.QualitySignal{
			Kind:   model.SignalCloseMismatch,
			Symbol: kept.Symbol,
			Series: kept.Series,
			Date:   kept.Date,
			Source: kept.SourceTag,
			Detail: fmt.Sprintf("close %s=%v %s=%v", kept.SourceTag, kept.Close, dropped.SourceTag, dropped.Close),
		})
	}
	if kept.TotalTradedQty != dropped.TotalTradedQty {
		sigs = append(sigs, model.QualitySignal{
			Kind:   model.SignalQtyMismatch,
			Symbol: kept.Symbol,
			Series: kept.Series,
			Date:   kept.Date,
			Source: kept.SourceTag,
			Detail: fmt.Sprintf("qty %s=%d %s=%d", kept.SourceTag, kept.TotalTradedQty, dropped.SourceTag, dropped.TotalTradedQty),
		})
	}
	return sigs
}
