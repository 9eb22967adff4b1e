package store

import (
	"math"
	"testing"
	"time"

	"BhavEngine/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertCanonicalIdempotent(t *testing.T) {
	s := openTestStore(t)

	recs := []model.PriceRecord{
		{Symbol: "TCS", Series: "EQ", Date: model.Day(2024, 1, 2), Close: 3540.5, TotalTradedQty: 1000, SourceTag: model.SourceSecFull},
		{Symbol: "INFY", Series: "EQ", Date: model.Day(2024, 1, 2), Close: 1510, TotalTradedQty: 2000, SourceTag: model.SourceSecFull},
	}
	if err := s.UpsertCanonical(recs); err != nil {
		t.Fatalf("UpsertCanonical: %v", err)
	}
	if err := s.UpsertCanonical(recs); err != nil {
		t.Fatalf("UpsertCanonical again: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM prices`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2 after double upsert", count)
	}
}

func TestUpsertCanonicalNaNBecomesNull(t *testing.T) {
	s := openTestStore(t)

	recs := []model.PriceRecord{{
		Symbol: "ETF", Series: "EQ", Date: model.Day(2024, 1, 2),
		Close: 100, AvgPrice: math.NaN(), SourceTag: model.SourceSecFull,
	}}
	if err := s.UpsertCanonical(recs); err != nil {
		t.Fatalf("UpsertCanonical: %v", err)
	}
	var nulls int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM prices WHERE avg_price IS NULL`).Scan(&nulls); err != nil {
		t.Fatalf("count: %v", err)
	}
	if nulls != 1 {
		t.Errorf("NULL avg_price rows = %d, want 1", nulls)
	}
}

func TestUpsertAndQueryAdjusted(t *testing.T) {
	s := openTestStore(t)

	recs := []model.AdjustedPriceRecord{
		{
			PriceRecord:      model.PriceRecord{Symbol: "ACME", Series: "EQ", Date: model.Day(2024, 2, 1), Close: 100},
			CumulativeFactor: 0.5,
			AdjustedClose:    50,
		},
		{
			PriceRecord:      model.PriceRecord{Symbol: "ACME", Series: "EQ", Date: model.Day(2024, 2, 2), Close: 52},
			CumulativeFactor: 1.0,
			AdjustedClose:    52,
		},
		{
			PriceRecord:      model.PriceRecord{Symbol: "OTHER", Series: "EQ", Date: model.Day(2024, 2, 1), Close: 10},
			CumulativeFactor: 1.0,
			AdjustedClose:    10,
		},
	}
	if err := s.UpsertAdjusted(recs); err != nil {
		t.Fatalf("UpsertAdjusted: %v", err)
	}

	got, err := s.QueryAdjusted("ACME", model.Day(2024, 2, 1), model.Day(2024, 2, 28))
	if err != nil {
		t.Fatalf("QueryAdjusted: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].CumulativeFactor != 0.5 || got[0].AdjustedClose != 50 {
		t.Errorf("first = %+v", got[0])
	}
	if !got[0].Date.Equal(model.Day(2024, 2, 1)) {
		t.Errorf("first date = %v", got[0].Date)
	}

	// Re-running the adjustment replaces, not duplicates.
	recs[0].CumulativeFactor = 0.25
	recs[0].AdjustedClose = 25
	if err := s.UpsertAdjusted(recs[:1]); err != nil {
		t.Fatalf("UpsertAdjusted update: %v", err)
	}
	got, err = s.QueryAdjusted("ACME", model.Day(2024, 2, 1), model.Day(2024, 2, 1))
	if err != nil {
		t.Fatalf("QueryAdjusted: %v", err)
	}
	if len(got) != 1 || got[0].AdjustedClose != 25 {
		t.Errorf("after update = %+v", got)
	}
}

func TestUpsertActionsIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)

	acts := []model.CorporateAction{{
		Symbol: "TCS", ExDate: model.Day(2024, 1, 18),
		Type: model.ActionDividend, DividendAmount: 9,
	}}
	if err := s.UpsertActions(acts); err != nil {
		t.Fatalf("UpsertActions: %v", err)
	}
	if err := s.UpsertActions(acts); err != nil {
		t.Fatalf("UpsertActions again: %v", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM corporate_actions`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestLatestDate(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.LatestDate(); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v, want false, nil", ok, err)
	}

	recs := []model.PriceRecord{
		{Symbol: "A", Series: "EQ", Date: model.Day(2024, 3, 1), SourceTag: model.SourceSecFull},
		{Symbol: "A", Series: "EQ", Date: model.Day(2024, 3, 4), SourceTag: model.SourceSecFull},
	}
	if err := s.UpsertCanonical(recs); err != nil {
		t.Fatalf("UpsertCanonical: %v", err)
	}
	latest, ok, err := s.LatestDate()
	if err != nil || !ok {
		t.Fatalf("LatestDate: ok=%v err=%v", ok, err)
	}
	want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if !latest.Equal(want) {
		t.Errorf("latest = %v, want %v", latest, want)
	}
}
