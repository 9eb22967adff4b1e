package pipeline

import (
	"math"
	"reflect"
	"testing"

	"BhavEngine/internal/merge"
	"BhavEngine/internal/model"
)

func batch(tag string, recs ...model.PriceRecord) merge.Batch {
	return merge.Batch{Name: tag, SourceTag: tag, Records: recs}
}

func rec(symbol string, day int, close float64, tag string) model.PriceRecord {
	return model.PriceRecord{
		Symbol: symbol, Series: "EQ", Date: model.Day(2024, 5, day),
		Close: close, SourceTag: tag,
	}
}

func TestRunEndToEnd(t *testing.T) {
	batches := []merge.Batch{
		batch(model.SourceLegacy,
			rec("AAA", 1, 100, model.SourceLegacy),
			rec("AAA", 2, 102, model.SourceLegacy),
			rec("BBB", 1, 50, model.SourceLegacy),
		),
		batch(model.SourceSecFull,
			rec("AAA", 2, 102, model.SourceSecFull),
			rec("AAA", 3, 101, model.SourceSecFull),
			rec("BBB", 2, 52, model.SourceSecFull),
		),
	}
	actions := []model.CorporateAction{{
		Symbol: "AAA", ExDate: model.Day(2024, 5, 3),
		Type: model.ActionBonus, BonusRatioFrom: 1, BonusRatioTo: 1,
	}}

	res, err := Run(batches, actions, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Canonical) != 5 {
		t.Fatalf("canonical = %d rows, want 5", len(res.Canonical))
	}
	if len(res.Adjusted) != 5 {
		t.Fatalf("adjusted = %d rows, want 5", len(res.Adjusted))
	}

	// AAA days 1 and 2 halve for the bonus, day 3 untouched, BBB untouched.
	byKey := make(map[model.RecordKey]model.AdjustedPriceRecord)
	for _, r := range res.Adjusted {
		byKey[r.Key()] = r
	}
	check := func(symbol string, day int, want float64) {
		t.Helper()
		k := model.RecordKey{Symbol: symbol, Series: "EQ", Date: model.Day(2024, 5, day).Format("2006-01-02")}
		got, ok := byKey[k]
		if !ok {
			t.Fatalf("missing adjusted row %v", k)
		}
		if math.Abs(got.AdjustedClose-want) > 1e-9 {
			t.Errorf("%s day %d: adjusted = %v, want %v", symbol, day, got.AdjustedClose, want)
		}
	}
	check("AAA", 1, 50)
	check("AAA", 2, 51)
	check("AAA", 3, 101)
	check("BBB", 1, 50)
	check("BBB", 2, 52)

	s := res.Summary
	if s.TotalRecords != 5 || s.UniqueSymbols != 2 || s.AdjustedRows != 5 {
		t.Errorf("summary = %+v", s)
	}
	if !s.FirstDate.Equal(model.Day(2024, 5, 1)) || !s.LastDate.Equal(model.Day(2024, 5, 3)) {
		t.Errorf("date range = %s..%s", s.FirstDate, s.LastDate)
	}
	if len(s.FailedSymbols) != 0 {
		t.Errorf("failed symbols = %v, want none", s.FailedSymbols)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	batches := []merge.Batch{
		batch(model.SourceSecFull,
			rec("X", 1, 10, model.SourceSecFull),
			rec("Y", 1, 20, model.SourceSecFull),
			rec("Z", 1, 30, model.SourceSecFull),
			rec("X", 2, 11, model.SourceSecFull),
			rec("Y", 2, 21, model.SourceSecFull),
			rec("Z", 2, 31, model.SourceSecFull),
		),
	}
	actions := []model.CorporateAction{{
		Symbol: "Y", ExDate: model.Day(2024, 5, 2),
		Type: model.ActionSplit, SplitRatioFrom: 2, SplitRatioTo: 1,
	}}

	first, err := Run(batches, actions, Options{Workers: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Run(batches, actions, Options{Workers: 4})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !reflect.DeepEqual(first.Adjusted, again.Adjusted) {
			t.Fatal("adjusted output differs between identical runs")
		}
	}
}

func TestRunSymbolAllowList(t *testing.T) {
	batches := []merge.Batch{
		batch(model.SourceSecFull,
			rec("KEEP", 1, 10, model.SourceSecFull),
			rec("DROP", 1, 20, model.SourceSecFull),
		),
	}
	res, err := Run(batches, nil, Options{Symbols: []string{"KEEP"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Canonical) != 1 || res.Canonical[0].Symbol != "KEEP" {
		t.Fatalf("canonical = %+v, want only KEEP", res.Canonical)
	}
	if len(res.Adjusted) != 1 || res.Adjusted[0].Symbol != "KEEP" {
		t.Fatalf("adjusted = %+v, want only KEEP", res.Adjusted)
	}
}

func TestRunReportsMissingAllowListedSymbol(t *testing.T) {
	batches := []merge.Batch{
		batch(model.SourceSecFull, rec("HERE", 1, 10, model.SourceSecFull)),
	}
	res, err := Run(batches, nil, Options{Symbols: []string{"HERE", "ABSENT"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Summary.FailedSymbols) != 1 || res.Summary.FailedSymbols[0] != "ABSENT" {
		t.Fatalf("failed symbols = %v, want [ABSENT]", res.Summary.FailedSymbols)
	}
	// The present symbol still adjusts normally.
	if len(res.Adjusted) != 1 || res.Adjusted[0].Symbol != "HERE" {
		t.Errorf("adjusted = %+v", res.Adjusted)
	}
}

func TestRunDeduplicatesAllowList(t *testing.T) {
	batches := []merge.Batch{
		batch(model.SourceSecFull, rec("HERE", 1, 10, model.SourceSecFull)),
	}
	res, err := Run(batches, nil, Options{Symbols: []string{"HERE", "ABSENT", "ABSENT", "HERE"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Summary.FailedSymbols) != 1 || res.Summary.FailedSymbols[0] != "ABSENT" {
		t.Fatalf("failed symbols = %v, want ABSENT exactly once", res.Summary.FailedSymbols)
	}
	if len(res.Adjusted) != 1 {
		t.Errorf("adjusted = %d rows, want 1", len(res.Adjusted))
	}
}

func TestRunPerSeriesAdjustment(t *testing.T) {
	// Same symbol trades in two series; both must survive with their own rows.
	batches := []merge.Batch{
		{Name: "new", SourceTag: model.SourceSecFull, Records: []model.PriceRecord{
			{Symbol: "DUAL", Series: "EQ", Date: model.Day(2024, 5, 1), Close: 100, SourceTag: model.SourceSecFull},
			{Symbol: "DUAL", Series: "BE", Date: model.Day(2024, 5, 1), Close: 99, SourceTag: model.SourceSecFull},
		}},
	}
	res, err := Run(batches, nil, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Adjusted) != 2 {
		t.Fatalf("adjusted = %d rows, want 2", len(res.Adjusted))
	}
	if res.Summary.UniqueSymbols != 1 {
		t.Errorf("unique symbols = %d, want 1", res.Summary.UniqueSymbols)
	}
}

func TestRunPerSourceCounts(t *testing.T) {
	batches := []merge.Batch{
		batch(model.SourceLegacy, rec("A", 1, 1, model.SourceLegacy)),
		batch(model.SourceSecFull, rec("A", 2, 2, model.SourceSecFull), rec("B", 2, 3, model.SourceSecFull)),
	}
	res, err := Run(batches, nil, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]int{model.SourceLegacy: 1, model.SourceSecFull: 2}
	if !reflect.DeepEqual(res.Summary.PerSourceRows, want) {
		t.Errorf("per-source = %v, want %v", res.Summary.PerSourceRows, want)
	}
}
