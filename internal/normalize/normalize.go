// Package normalize turns the heterogeneous raw exchange files into batches
// of the canonical PriceRecord shape.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IngestError reports that an entire batch could not be normalized, e.g. a
// required column missing from every file. It is fatal to that batch only;
// the pipeline continues with the remaining batches.
type IngestError struct {
	Batch string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest batch %q: %v", e.Batch, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// dateLayouts accepted for the dd-MMM-yyyy style dates the feeds carry. The
// legacy bulletin switched between 4- and 2-digit years over the years.
var dateLayouts = []string{"02-Jan-2006", "02-Jan-06"}

// ParseFeedDate parses a dd-MMM-yyyy (or dd-MMM-yy) date. The feeds write
// the month in upper case, which time.Parse rejects, so the month is re-cased
// first.
func ParseFeedDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) == 3 && len(parts[1]) >= 2 {
		m := parts[1]
		parts[1] = strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
		s = strings.Join(parts, "-")
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseFloat coerces a raw field to float64. Absent values (empty, "-", "NA")
// and unparseable junk become NaN, mirroring the source feeds where a dash
// marks a column the series does not report.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "NA" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseInt coerces a raw field to int64, defaulting absent or unparseable
// values to 0.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "NA" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some feeds write quantities as floats.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}

// headerIndex maps trimmed column names to their position.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func missingColumns(idx map[string]int, required []string) []string {
	var missing []string
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
