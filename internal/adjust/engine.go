// Package adjust derives corporate-action-adjusted close prices from a
// security's canonical series.
package adjust

import (
	"fmt"
	"sort"

	"BhavEngine/internal/model"
)

// MissingSeriesError reports an adjustment request for a symbol that has no
// canonical series at all.
type MissingSeriesError struct {
	Symbol string
}

func (e *MissingSeriesError) Error() string {
	return fmt.Sprintf("no canonical series for symbol %s", e.Symbol)
}

// Adjust computes the adjusted series for one security.
//
// Actions are applied in ascending ex-date order; actions sharing an ex-date
// keep their input order (the factor product is the same either way, the
// convention only fixes the order of emitted signals). For each action the
// reference day is the latest trading day strictly before the ex-date; its
// close anchors the multiplier, and the multiplier rescales the cumulative
// factor of every day on or before the reference day. Days after the
// reference day are untouched by that action.
//
// Malformed single actions degrade to no-ops with a quality signal; they
// never abort the security. The output is a pure function of the inputs:
// same series and actions, same result, on every run.
func Adjust(symbol string, series []model.PriceRecord, actions []model.CorporateAction) ([]model.AdjustedPriceRecord, []model.QualitySignal, error) {
	if len(series) == 0 {
		return nil, nil, &MissingSeriesError{Symbol: symbol}
	}

	sorted := make([]model.PriceRecord, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	factors := make([]float64, len(sorted))
	for i := range factors {
		factors[i] = 1.0
	}

	var signals []model.QualitySignal
	if len(actions) > 0 {
		ordered := make([]model.CorporateAction, len(actions))
		copy(ordered, actions)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ExDate.Before(ordered[j].ExDate) })

		for i := range ordered {
			signals = append(signals, applyAction(&ordered[i], sorted, factors)...)
		}
	}

	out := make([]model.AdjustedPriceRecord, len(sorted))
	for i := range sorted {
		out[i] = model.AdjustedPriceRecord{
			PriceRecord:      sorted[i],
			CumulativeFactor: factors[i],
			AdjustedClose:    sorted[i].Close * factors[i],
		}
	}
	return out, signals, nil
}

// applyAction folds one action into the factor series. series must be sorted
// by date and factors parallel to it.
func applyAction(a *model.CorporateAction, series []model.PriceRecord, factors []float64) []model.QualitySignal {
	// First index trading on or after the ex-date; the reference day is the
	// one just before it.
	n := sort.Search(len(series), func(i int) bool { return !series[i].Date.Before(a.ExDate) })
	ref := n - 1
	if ref < 0 {
		// Action predates all trading history for this symbol.
		return []model.QualitySignal{degraded(a, "no trading day before ex-date")}
	}

	refClose := series[ref].Close
	m := multiplier(a, refClose)
	switch {
	case m <= 0:
		// A zero or negative multiplier would imply a non-physical price
		// collapse; reject the action.
		return []model.QualitySignal{degraded(a, fmt.Sprintf("non-positive multiplier %v", m))}
	case m == 1.0:
		if a.Type == model.ActionDividend && a.DividendAmount > 0 && !(refClose > 0) {
			return []model.QualitySignal{degraded(a, fmt.Sprintf("reference close %v not positive", refClose))}
		}
		return nil
	}

	for j := 0; j <= ref; j++ {
		factors[j] *= m
	}
	return nil
}

// multiplier computes the price adjustment factor of one action relative to
// the reference-day close. Anything that cannot be computed safely is 1.0.
func multiplier(a *model.CorporateAction, refClose float64) float64 {
	switch a.Type {
	case model.ActionDividend:
		if refClose > 0 && a.DividendAmount > 0 {
			return (refClose - a.DividendAmount) / refClose
		}
	case model.ActionSplit:
		if a.SplitRatioFrom > 0 {
			return a.SplitRatioTo / a.SplitRatioFrom
		}
	case model.ActionBonus:
		if d := a.BonusRatioFrom + a.BonusRatioTo; d > 0 {
			return a.BonusRatioTo / d
		}
	}
	// Rights issues and unclassified actions carry no price multiplier.
	return 1.0
}

func degraded(a *model.CorporateAction, detail string) model.QualitySignal {
	return model.QualitySignal{
		Kind:   model.SignalDegradedAction,
		Symbol: a.Symbol,
		Date:   a.ExDate,
		Detail: fmt.Sprintf("%s: %s", a.Type, detail),
	}
}
