// Package store persists canonical prices, corporate actions and adjusted
// series.
package store

import (
	"time"

	"BhavEngine/internal/model"
)

// Store persists pipeline output. Upserts are keyed on the natural keys, so
// re-running a window over the same inputs leaves the database unchanged.
type Store interface {
	UpsertCanonical(records []model.PriceRecord) error
	UpsertActions(actions []model.CorporateAction) error
	UpsertAdjusted(records []model.AdjustedPriceRecord) error
	QueryAdjusted(symbol string, from, to time.Time) ([]model.AdjustedPriceRecord, error)
	// LatestDate reports the newest canonical trading date, if any rows exist.
	LatestDate() (time.Time, bool, error)
	Close() error
}

// NoopStore is used when no database is configured.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) UpsertCanonical(_ []model.PriceRecord) error        { return nil }
func (n *NoopStore) UpsertActions(_ []model.CorporateAction) error      { return nil }
func (n *NoopStore) UpsertAdjusted(_ []model.AdjustedPriceRecord) error { return nil }
func (n *NoopStore) QueryAdjusted(_ string, _, _ time.Time) ([]model.AdjustedPriceRecord, error) {
	return nil, nil
}
func (n *NoopStore) LatestDate() (time.Time, bool, error) { return time.Time{}, false, nil }
func (n *NoopStore) Close() error                         { return nil }
