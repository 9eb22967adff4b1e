package merge

import (
	"testing"

	"BhavEngine/internal/model"
)

func rec(symbol, series string, day int, close float64, qty int64, tag string) model.PriceRecord {
	return model.PriceRecord{
		Symbol:         symbol,
		Series:         series,
		Date:           model.Day(2024, 1, day),
		Close:          close,
		TotalTradedQty: qty,
		SourceTag:      tag,
	}
}

func TestMergeKeyUniqueness(t *testing.T) {
	batches := []Batch{
		{Name: "old", SourceTag: model.SourceLegacy, Records: []model.PriceRecord{
			rec("TCS", "EQ", 1, 100, 10, model.SourceLegacy),
			rec("TCS", "EQ", 2, 101, 11, model.SourceLegacy),
		}},
		{Name: "new", SourceTag: model.SourceSecFull, Records: []model.PriceRecord{
			rec("TCS", "EQ", 2, 101, 11, model.SourceSecFull),
			rec("TCS", "EQ", 3, 102, 12, model.SourceSecFull),
		}},
	}
	res, err := Merge(batches, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(res.Records))
	}
	seen := make(map[model.RecordKey]bool)
	for i := range res.Records {
		k := res.Records[i].Key()
		if seen[k] {
			t.Fatalf("duplicate key %v in merged output", k)
		}
		seen[k] = true
	}
}

func TestMergePrecedenceWinsRegardlessOfBatchOrder(t *testing.T) {
	legacy := Batch{Name: "old", SourceTag: model.SourceLegacy, Records: []model.PriceRecord{
		rec("INFY", "EQ", 5, 100, 500, model.SourceLegacy),
	}}
	modern := Batch{Name: "new", SourceTag: model.SourceSecFull, Records: []model.PriceRecord{
		rec("INFY", "EQ", 5, 101, 500, model.SourceSecFull),
	}}

	for name, batches := range map[string][]Batch{
		"legacy first": {legacy, modern},
		"modern first": {modern, legacy},
	} {
		res, err := Merge(batches, nil)
		if err != nil {
			t.Fatalf("%s: Merge: %v", name, err)
		}
		if len(res.Records) != 1 {
			t.Fatalf("%s: got %d records, want 1", name, len(res.Records))
		}
		got := res.Records[0]
		if got.SourceTag != model.SourceSecFull || got.Close != 101 {
			t.Errorf("%s: winner = %s close %v, want %s close 101", name, got.SourceTag, got.Close, model.SourceSecFull)
		}
		if len(res.Signals) != 1 || res.Signals[0].Kind != model.SignalCloseMismatch {
			t.Errorf("%s: signals = %+v, want one CLOSE_MISMATCH", name, res.Signals)
		}
	}
}

func TestMergeExactDuplicatesCollapseSilently(t *testing.T) {
	batches := []Batch{
		{Name: "old", SourceTag: model.SourceLegacy, Records: []model.PriceRecord{
			rec("SBIN", "EQ", 8, 600, 1000, model.SourceLegacy),
		}},
		{Name: "new", SourceTag: model.SourceSecFull, Records: []model.PriceRecord{
			rec("SBIN", "EQ", 8, 600, 1000, model.SourceSecFull),
		}},
	}
	res, err := Merge(batches, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	if len(res.Signals) != 0 {
		t.Errorf("signals = %+v, want none for identical duplicates", res.Signals)
	}
}

func TestMergeQuantityConflictSignal(t *testing.T) {
	batches := []Batch{
		{Name: "old", SourceTag: model.SourceLegacy, Records: []model.PriceRecord{
			rec("WIPRO", "EQ", 9, 450, 2000, model.SourceLegacy),
		}},
		{Name: "new", SourceTag: model.SourceSecFull, Records: []model.PriceRecord{
			rec("WIPRO", "EQ", 9, 450, 2500, model.SourceSecFull),
		}},
	}
	res, err := Merge(batches, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Signals) != 1 || res.Signals[0].Kind != model.SignalQtyMismatch {
		t.Fatalf("signals = %+v, want one QTY_MISMATCH", res.Signals)
	}
	if res.Records[0].TotalTradedQty != 2500 {
		t.Errorf("kept qty = %d, want the consolidated feed's 2500", res.Records[0].TotalTradedQty)
	}
}

func TestMergeDropsMalformedRows(t *testing.T) {
	batches := []Batch{
		{Name: "old", SourceTag: model.SourceLegacy, Records: []model.PriceRecord{
			rec("", "EQ", 1, 10, 1, model.SourceLegacy),
			rec("OK", "  ", 1, 10, 1, model.SourceLegacy),
			rec("OK", "EQ", 1, 10, 1, model.SourceLegacy),
		}},
	}
	res, err := Merge(batches, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Malformed != 2 {
		t.Errorf("malformed = %d, want 2", res.Malformed)
	}
	if len(res.Records) != 1 {
		t.Errorf("got %d records, want 1", len(res.Records))
	}
}

func TestMergeRejectsBatchWithoutSourceTag(t *testing.T) {
	_, err := Merge([]Batch{{Name: "anonymous"}}, nil)
	if err == nil {
		t.Fatal("expected error for batch without source tag")
	}
}

func TestMergeOutputSorted(t *testing.T) {
	batches := []Batch{
		{Name: "new", SourceTag: model.SourceSecFull, Records: []model.PriceRecord{
			rec("B", "EQ", 2, 1, 1, model.SourceSecFull),
			rec("A", "EQ", 2, 1, 1, model.SourceSecFull),
			rec("A", "BE", 2, 1, 1, model.SourceSecFull),
			rec("A", "EQ", 1, 1, 1, model.SourceSecFull),
		}},
	}
	res, err := Merge(batches, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for i := 1; i < len(res.Records); i++ {
		a, b := &res.Records[i-1], &res.Records[i]
		if a.Symbol > b.Symbol ||
			(a.Symbol == b.Symbol && a.Series > b.Series) ||
			(a.Symbol == b.Symbol && a.Series == b.Series && a.Date.After(b.Date)) {
			t.Fatalf("records out of order at %d: %+v before %+v", i, a, b)
		}
	}
}
