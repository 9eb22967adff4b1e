package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"

	"BhavEngine/internal/merge"
	"BhavEngine/internal/model"
)

// secFullColumns are the columns the consolidated sec_bhavdata_full feed must
// carry. The feed already includes the delivery figures, so no fold is needed.
var secFullColumns = []string{
	"SYMBOL", "SERIES", "DATE1", "PREV_CLOSE", "OPEN_PRICE", "HIGH_PRICE",
	"LOW_PRICE", "LAST_PRICE", "CLOSE_PRICE", "AVG_PRICE", "TTL_TRD_QNTY",
	"TURNOVER_LACS", "NO_OF_TRADES", "DELIV_QTY", "DELIV_PER",
}

// ParseSecFull reads one consolidated daily file. The feed writes " -" into
// columns it does not report for a series (e.g. delivery on index futures);
// those come through as NaN for prices and 0 for quantities. Rows dropped for
// an unparseable date are counted.
func ParseSecFull(r io.Reader) ([]model.PriceRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	idx := headerIndex(header)
	if missing := missingColumns(idx, secFullColumns); len(missing) > 0 {
		return nil, 0, fmt.Errorf("missing columns %v", missing)
	}

	var records []model.PriceRecord
	dropped := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		date, err := ParseFeedDate(field(row, idx, "DATE1"))
		if err != nil {
			dropped++
			continue
		}
		pct := parseFloat(field(row, idx, "DELIV_PER"))
		if math.IsNaN(pct) {
			pct = 0
		}
		records = append(records, model.PriceRecord{
			Symbol:         field(row, idx, "SYMBOL"),
			Series:         field(row, idx, "SERIES"),
			Date:           date,
			PrevClose:      parseFloat(field(row, idx, "PREV_CLOSE")),
			Open:           parseFloat(field(row, idx, "OPEN_PRICE")),
			High:           parseFloat(field(row, idx, "HIGH_PRICE")),
			Low:            parseFloat(field(row, idx, "LOW_PRICE")),
			Last:           parseFloat(field(row, idx, "LAST_PRICE")),
			Close:          parseFloat(field(row, idx, "CLOSE_PRICE")),
			AvgPrice:       parseFloat(field(row, idx, "AVG_PRICE")),
			TotalTradedQty: parseInt(field(row, idx, "TTL_TRD_QNTY")),
			TurnoverLacs:   parseFloat(field(row, idx, "TURNOVER_LACS")),
			TradeCount:     parseInt(field(row, idx, "NO_OF_TRADES")),
			DeliveredQty:   parseInt(field(row, idx, "DELIV_QTY")),
			DeliveredPct:   pct,
			SourceTag:      model.SourceSecFull,
		})
	}
	return records, dropped, nil
}

// LoadSecFullBatch reads every consolidated daily file under dir into one
// batch. Same policy as the legacy loader: a bad file is logged and skipped,
// the batch fails only when files exist and none parses.
func LoadSecFullBatch(dir string) (merge.Batch, int, error) {
	batch := merge.Batch{Name: "consolidated daily files", SourceTag: model.SourceSecFull}

	files, err := filepath.Glob(filepath.Join(dir, "sec_bhavdata_full_*.csv"))
	if err != nil {
		return batch, 0, &IngestError{Batch: batch.Name, Err: err}
	}
	dropped := 0
	var firstErr error
	parsedFiles := 0
	for _, fp := range files {
		f, err := os.Open(fp)
		if err != nil {
			log.Printf("[ERROR] consolidated file %s: %v", fp, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", filepath.Base(fp), err)
			}
			continue
		}
		recs, d, err := ParseSecFull(f)
		f.Close()
		if err != nil {
			log.Printf("[ERROR] consolidated file %s: %v", fp, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", filepath.Base(fp), err)
			}
			continue
		}
		parsedFiles++
		dropped += d
		batch.Records = append(batch.Records, recs...)
	}
	if len(files) > 0 && parsedFiles == 0 {
		return batch, dropped, &IngestError{Batch: batch.Name, Err: firstErr}
	}
	return batch, dropped, nil
}
