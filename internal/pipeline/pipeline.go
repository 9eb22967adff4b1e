// Package pipeline runs the full consolidation: one global merge, then
// per-symbol adjustment on a worker pool.
package pipeline

import (
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"BhavEngine/internal/adjust"
	"BhavEngine/internal/merge"
	"BhavEngine/internal/model"
)

// Options control one consolidation run.
type Options struct {
	// Precedence over source tags; empty means merge.DefaultPrecedence.
	Precedence []string
	// Workers for the per-symbol adjustment phase; <=0 means NumCPU.
	Workers int
	// Symbols restricts processing to an allow-list; empty means all.
	Symbols []string
}

// Result is the output of one run. Adjusted fully replaces any prior adjusted
// output for the same inputs: the run is recomputable from canonical data and
// actions alone.
type Result struct {
	Canonical []model.PriceRecord
	Adjusted  []model.AdjustedPriceRecord
	Signals   []model.QualitySignal
	Summary   model.RunSummary
}

// Run merges the batches into the canonical series and adjusts it per symbol.
// Symbols are independent, so the adjustment phase fans out over a worker
// pool; workers share nothing writable and results are concatenated in
// deterministic symbol order afterwards.
func Run(batches []merge.Batch, actions []model.CorporateAction, opts Options) (*Result, error) {
	start := time.Now()

	merged, err := merge.Merge(batches, opts.Precedence)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] merged %d canonical records (%d malformed dropped, %d quality signals)",
		len(merged.Records), merged.Malformed, len(merged.Signals))

	canonical := merged.Records
	if len(opts.Symbols) > 0 {
		canonical = filterSymbols(canonical, opts.Symbols)
	}

	// Partition by symbol; within a symbol, by series, so each engine call
	// sees a date-unique sequence. Canonical rows arrive sorted by symbol,
	// series, date, so groups are contiguous.
	groups := groupBySymbol(canonical)
	actionsBySym := groupActions(actions)

	symbols := make([]string, 0, len(groups))
	for sym := range groups {
		symbols = append(symbols, sym)
	}
	// Allow-listed symbols with no canonical rows still go through the
	// engine so the missing series is reported, not silently skipped. The
	// allow-list may repeat a symbol; each one runs once.
	queued := make(map[string]bool, len(groups))
	for sym := range groups {
		queued[sym] = true
	}
	for _, sym := range opts.Symbols {
		if !queued[sym] {
			queued[sym] = true
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(symbols) && len(symbols) > 0 {
		workers = len(symbols)
	}

	results := make(map[string]*symbolResult, len(symbols))
	var mu sync.Mutex

	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				r := adjustSymbol(sym, groups[sym], actionsBySym[sym])
				mu.Lock()
				results[sym] = r
				mu.Unlock()
			}
		}()
	}
	for _, sym := range symbols {
		jobs <- sym
	}
	close(jobs)
	wg.Wait()

	res := &Result{
		Canonical: canonical,
		Signals:   merged.Signals,
	}
	var failed []string
	for _, sym := range symbols {
		r := results[sym]
		res.Adjusted = append(res.Adjusted, r.adjusted...)
		res.Signals = append(res.Signals, r.signals...)
		if r.failed {
			failed = append(failed, sym)
		}
	}

	res.Summary = summarize(canonical, res)
	res.Summary.MalformedRows = merged.Malformed
	res.Summary.FailedSymbols = failed
	res.Summary.Elapsed = time.Since(start)
	log.Printf("[INFO] adjusted %d records across %d symbols in %v",
		len(res.Adjusted), res.Summary.UniqueSymbols, res.Summary.Elapsed.Round(time.Millisecond))
	return res, nil
}

type symbolResult struct {
	adjusted []model.AdjustedPriceRecord
	signals  []model.QualitySignal
	failed   bool
}

// adjustSymbol runs the engine over every series of one symbol. A failure
// degrades to the factor-1.0 fallback for the whole symbol rather than
// aborting the run.
func adjustSymbol(sym string, seriesGroups [][]model.PriceRecord, actions []model.CorporateAction) (out *symbolResult) {
	out = &symbolResult{}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] adjusting %s: %v; emitting unadjusted fallback", sym, r)
			out.adjusted = fallback(seriesGroups)
			out.signals = nil
			out.failed = true
		}
	}()

	if len(seriesGroups) == 0 {
		// Allow-listed symbol absent from the canonical data.
		_, _, err := adjust.Adjust(sym, nil, nil)
		log.Printf("[ERROR] %v", err)
		out.failed = true
		return out
	}
	for _, series := range seriesGroups {
		adjusted, signals, err := adjust.Adjust(sym, series, actions)
		if err != nil {
			log.Printf("[ERROR] adjusting %s: %v; emitting unadjusted fallback", sym, err)
			out.adjusted = append(out.adjusted, fallback([][]model.PriceRecord{series})...)
			out.failed = true
			continue
		}
		out.adjusted = append(out.adjusted, adjusted...)
		out.signals = append(out.signals, signals...)
	}
	return out
}

// fallback emits rows with a neutral factor so a failed symbol still appears
// in the output.
func fallback(seriesGroups [][]model.PriceRecord) []model.AdjustedPriceRecord {
	var out []model.AdjustedPriceRecord
	for _, series := range seriesGroups {
		for _, rec := range series {
			out = append(out, model.AdjustedPriceRecord{
				PriceRecord:      rec,
				CumulativeFactor: 1.0,
				AdjustedClose:    rec.Close,
			})
		}
	}
	return out
}

func filterSymbols(records []model.PriceRecord, allow []string) []model.PriceRecord {
	set := make(map[string]bool, len(allow))
	for _, s := range allow {
		set[s] = true
	}
	var out []model.PriceRecord
	for _, r := range records {
		if set[r.Symbol] {
			out = append(out, r)
		}
	}
	return out
}

// groupBySymbol splits canonical rows (sorted by symbol, series, date) into
// per-symbol lists of per-series slices.
func groupBySymbol(records []model.PriceRecord) map[string][][]model.PriceRecord {
	groups := make(map[string][][]model.PriceRecord)
	for i := 0; i < len(records); {
		j := i
		for j < len(records) && records[j].Symbol == records[i].Symbol && records[j].Series == records[i].Series {
			j++
		}
		sym := records[i].Symbol
		groups[sym] = append(groups[sym], records[i:j:j])
		i = j
	}
	return groups
}

func groupActions(actions []model.CorporateAction) map[string][]model.CorporateAction {
	bySym := make(map[string][]model.CorporateAction)
	for _, a := range actions {
		bySym[a.Symbol] = append(bySym[a.Symbol], a)
	}
	return bySym
}

func summarize(canonical []model.PriceRecord, res *Result) model.RunSummary {
	s := model.RunSummary{
		TotalRecords:   len(canonical),
		PerSourceRows:  make(map[string]int),
		QualitySignals: len(res.Signals),
		AdjustedRows:   len(res.Adjusted),
	}
	seen := make(map[string]bool)
	for i := range canonical {
		r := &canonical[i]
		s.PerSourceRows[r.SourceTag]++
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			s.UniqueSymbols++
		}
		if s.FirstDate.IsZero() || r.Date.Before(s.FirstDate) {
			s.FirstDate = r.Date
		}
		if r.Date.After(s.LastDate) {
			s.LastDate = r.Date
		}
	}
	return s
}
