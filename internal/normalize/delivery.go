package normalize

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"BhavEngine/internal/model"
)

// DeliveryRecord is one row of the security-wise delivery report (MTO file).
type DeliveryRecord struct {
	Symbol       string
	Series       string
	Date         time.Time
	DeliveredQty int64
	DeliveredPct float64
}

// DeliveryFileDate extracts the trading date from an MTO_ddmmyyyy.DAT
// filename.
func DeliveryFileDate(name string) (time.Time, error) {
	base := filepath.Base(name)
	if len(base) < 12 || !strings.HasPrefix(base, "MTO_") {
		return time.Time{}, fmt.Errorf("unexpected delivery filename %q", base)
	}
	t, err := time.Parse("02012006", base[4:12])
	if err != nil {
		return time.Time{}, fmt.Errorf("delivery filename %q: %w", base, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseDelivery reads one MTO report. The file opens with four preamble
// lines, then comma-separated data rows:
//
//	RECORD_TYPE, SR_NO, SYMBOL, SERIES, QUANTITY_TRADED, DELIV_QTY, DELIV_PER
//
// Rows that do not have at least seven fields are dropped and counted.
func ParseDelivery(r io.Reader, date time.Time) ([]DeliveryRecord, int, error) {
	sc := bufio.NewScanner(r)
	var records []DeliveryRecord
	dropped := 0
	line := 0
	for sc.Scan() {
		line++
		if line <= 4 {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) < 7 {
			dropped++
			continue
		}
		symbol := strings.TrimSpace(fields[2])
		if symbol == "" {
			dropped++
			continue
		}
		series := strings.TrimSpace(fields[3])
		if series == "" {
			series = "UNKNOWN"
		}
		pct := parseFloat(fields[6])
		if math.IsNaN(pct) {
			pct = 0
		}
		records = append(records, DeliveryRecord{
			Symbol:       symbol,
			Series:       series,
			Date:         date,
			DeliveredQty: parseInt(fields[5]),
			DeliveredPct: pct,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, dropped, fmt.Errorf("read delivery report: %w", err)
	}
	return records, dropped, nil
}

// LoadDeliveryDir reads every MTO_*.DAT report under dir.
func LoadDeliveryDir(dir string) ([]DeliveryRecord, int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "MTO_*.DAT"))
	if err != nil {
		return nil, 0, err
	}
	var records []DeliveryRecord
	dropped := 0
	for _, fp := range files {
		date, err := DeliveryFileDate(fp)
		if err != nil {
			log.Printf("[WARN] %v", err)
			continue
		}
		f, err := os.Open(fp)
		if err != nil {
			log.Printf("[WARN] delivery report %s: %v", fp, err)
			continue
		}
		recs, d, err := ParseDelivery(f, date)
		f.Close()
		if err != nil {
			log.Printf("[WARN] delivery report %s: %v", fp, err)
			continue
		}
		dropped += d
		records = append(records, recs...)
	}
	return records, dropped, nil
}

// FoldDelivery fills the delivery columns of the legacy price records from
// the delivery reports, keyed by (symbol, series, date). Records without a
// matching delivery row keep their 0 defaults, as in the source dataset's
// left join.
func FoldDelivery(records []model.PriceRecord, deliveries []DeliveryRecord) {
	if len(deliveries) == 0 {
		return
	}
	byKey := make(map[model.RecordKey]*DeliveryRecord, len(deliveries))
	for i := range deliveries {
		d := &deliveries[i]
		key := model.RecordKey{Symbol: d.Symbol, Series: d.Series, Date: d.Date.Format("2006-01-02")}
		byKey[key] = d
	}
	for i := range records {
		if d, ok := byKey[records[i].Key()]; ok {
			records[i].DeliveredQty = d.DeliveredQty
			records[i].DeliveredPct = d.DeliveredPct
		}
	}
}
