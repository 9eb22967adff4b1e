// Package export writes pipeline output to flat files for downstream
// consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"BhavEngine/internal/model"
)

var adjustedHeader = []string{
	"SYMBOL", "SERIES", "DATE", "PREV_CLOSE", "OPEN", "HIGH", "LOW", "LAST",
	"CLOSE", "AVG_PRICE", "VOLUME", "TURNOVER_LACS", "NO_OF_TRADES",
	"DELIV_QTY", "DELIV_PER", "ADJ_FACTOR", "ADJ_CLOSE",
}

// WriteAdjustedCSV writes the full adjusted dataset to path, replacing any
// previous export. The write goes through a temp file and rename so a crash
// mid-export never leaves a truncated file behind.
func WriteAdjustedCSV(path string, records []model.AdjustedPriceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".adjusted-*.csv")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(adjustedHeader); err != nil {
		tmp.Close()
		return err
	}
	for i := range records {
		r := &records[i]
		row := []string{
			r.Symbol,
			r.Series,
			r.Date.Format("2006-01-02"),
			num(r.PrevClose),
			num(r.Open),
			num(r.High),
			num(r.Low),
			num(r.Last),
			num(r.Close),
			num(r.AvgPrice),
			strconv.FormatInt(r.TotalTradedQty, 10),
			num(r.TurnoverLacs),
			strconv.FormatInt(r.TradeCount, 10),
			strconv.FormatInt(r.DeliveredQty, 10),
			num(r.DeliveredPct),
			num(r.CumulativeFactor),
			num(r.AdjustedClose),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace export: %w", err)
	}
	log.Printf("[INFO] exported %d adjusted rows to %s", len(records), path)
	return nil
}

// num renders a float with no trailing zero noise; missing values export as
// an empty cell.
func num(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
