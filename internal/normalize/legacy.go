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

// legacyColumns are the columns the legacy cm*bhav.csv bulletin must carry.
var legacyColumns = []string{
	"SYMBOL", "SERIES", "OPEN", "HIGH", "LOW", "CLOSE", "LAST",
	"PREVCLOSE", "TOTTRDQTY", "TOTTRDVAL", "TIMESTAMP", "TOTALTRADES",
}

// ParseLegacyBhav reads one legacy daily bulletin. The bulletin has no
// delivery columns; those stay 0 until FoldDelivery fills them in. Returns
// the records plus the count of rows dropped for an unparseable date.
func ParseLegacyBhav(r io.Reader) ([]model.PriceRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	idx := headerIndex(header)
	if missing := missingColumns(idx, legacyColumns); len(missing) > 0 {
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
		date, err := ParseFeedDate(field(row, idx, "TIMESTAMP"))
		if err != nil {
			dropped++
			continue
		}
		qty := parseInt(field(row, idx, "TOTTRDQTY"))
		turnover := parseFloat(field(row, idx, "TOTTRDVAL"))

		// The bulletin has no average-price column; derive it from value
		// over quantity as the upstream dataset did.
		avg := math.NaN()
		if qty > 0 && !math.IsNaN(turnover) {
			avg = turnover / float64(qty)
		}

		records = append(records, model.PriceRecord{
			Symbol:         field(row, idx, "SYMBOL"),
			Series:         field(row, idx, "SERIES"),
			Date:           date,
			PrevClose:      parseFloat(field(row, idx, "PREVCLOSE")),
			Open:           parseFloat(field(row, idx, "OPEN")),
			High:           parseFloat(field(row, idx, "HIGH")),
			Low:            parseFloat(field(row, idx, "LOW")),
			Last:           parseFloat(field(row, idx, "LAST")),
			Close:          parseFloat(field(row, idx, "CLOSE")),
			AvgPrice:       avg,
			TotalTradedQty: qty,
			TurnoverLacs:   turnover / 100000.0, // raw value is in units, not lakhs
			TradeCount:     parseInt(field(row, idx, "TOTALTRADES")),
			SourceTag:      model.SourceLegacy,
		})
	}
	return records, dropped, nil
}

// LoadLegacyBatch reads every legacy bulletin under bhavDir, folds in the
// delivery reports under deliveryDir, and returns them as one batch. A file
// that fails to parse is logged and skipped; the batch as a whole fails only
// when files exist and none of them parses.
func LoadLegacyBatch(bhavDir, deliveryDir string) (merge.Batch, int, error) {
	batch := merge.Batch{Name: "legacy bulletins", SourceTag: model.SourceLegacy}

	files, err := filepath.Glob(filepath.Join(bhavDir, "cm*bhav.csv"))
	if err != nil {
		return batch, 0, &IngestError{Batch: batch.Name, Err: err}
	}
	dropped := 0
	var firstErr error
	parsedFiles := 0
	for _, fp := range files {
		recs, d, err := parseFile(fp, ParseLegacyBhav)
		if err != nil {
			log.Printf("[ERROR] legacy bulletin %s: %v", fp, err)
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

	deliveries, dDropped, err := LoadDeliveryDir(deliveryDir)
	if err != nil {
		// Delivery data only enriches the legacy rows; its absence is not
		// fatal to the batch.
		log.Printf("[WARN] delivery reports: %v", err)
	}
	dropped += dDropped
	FoldDelivery(batch.Records, deliveries)
	return batch, dropped, nil
}

func parseFile(path string, parse func(io.Reader) ([]model.PriceRecord, int, error)) ([]model.PriceRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return parse(f)
}
