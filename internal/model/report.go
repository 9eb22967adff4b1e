package model

import "time"

// Kinds of data-quality signals. Signals are audit records, not errors:
// processing always continues with the documented fallback.
const (
	SignalCloseMismatch  = "CLOSE_MISMATCH"
	SignalQtyMismatch    = "QTY_MISMATCH"
	SignalDegradedAction = "DEGRADED_ACTION"
)

// QualitySignal records a conflict detected during merge (two sources
// disagreeing on the same key) or a corporate action degraded to a no-op
// (missing reference day, non-positive multiplier).
type QualitySignal struct {
	Kind   string
	Symbol string
	Series string
	Date   time.Time // record date, or ex-date for action signals
	Source string    // winning source for merge signals
	Detail string
}

// RunSummary is the machine-readable report of one consolidation run.
type RunSummary struct {
	TotalRecords   int
	UniqueSymbols  int
	FirstDate      time.Time
	LastDate       time.Time
	PerSourceRows  map[string]int
	QualitySignals int
	MalformedRows  int
	AdjustedRows   int
	FailedSymbols  []string
	Elapsed        time.Duration
}
