// Package actions ingests the exchange's corporate-action announcements and
// classifies their free-text purpose field.
package actions

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"BhavEngine/internal/model"
	"BhavEngine/internal/normalize"
)

// actionColumns are the columns the CF-CA announcement export must carry.
var actionColumns = []string{"SYMBOL", "EX-DATE", "PURPOSE"}

var (
	// amountRe catches "Rs 5", "Re 1", "Rs. 2.50" etc. in a dividend purpose.
	amountRe = regexp.MustCompile(`(?i)\br[se]\.?\s*(\d+(?:\.\d+)?)`)
	// ratioRe catches "1:10", "2 : 1" style ratios in split/bonus purposes.
	ratioRe = regexp.MustCompile(`(\d+)\s*:\s*(\d+)`)
)

// ParseActions reads the corporate-action announcement export. Rows without a
// symbol or with an unparseable ex-date are dropped and counted; the purpose
// text is classified by Classify. Rows keep file order, so two actions sharing
// an ex-date retain the announcement order downstream.
func ParseActions(r io.Reader) ([]model.CorporateAction, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range actionColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("missing columns %v", missing)
	}

	var out []model.CorporateAction
	dropped := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		get := func(name string) string {
			i := idx[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		symbol := get("SYMBOL")
		if symbol == "" {
			dropped++
			continue
		}
		exDate, err := normalize.ParseFeedDate(get("EX-DATE"))
		if err != nil {
			dropped++
			continue
		}
		a := Classify(get("PURPOSE"))
		a.Symbol = symbol
		a.ExDate = exDate
		out = append(out, a)
	}
	return out, dropped, nil
}

// LoadActions reads the announcement export at path. A missing file is not an
// error; adjustment simply runs with no actions.
func LoadActions(path string) ([]model.CorporateAction, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[WARN] no corporate-action file at %s", path)
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()
	return ParseActions(f)
}

// Classify maps a free-text purpose line to a typed action. The exchange
// writes these inconsistently ("DIVIDEND - RS 5 PER SHARE", "Bonus 1:1",
// "FV Split Rs.10 to Rs.2"), so matching is keyword-driven and amounts or
// ratios that cannot be extracted fall back to values the adjustment engine
// treats as a no-op.
func Classify(purpose string) model.CorporateAction {
	p := strings.ToLower(purpose)
	switch {
	case strings.Contains(p, "bonus"):
		a := model.CorporateAction{Type: model.ActionBonus}
		if m := ratioRe.FindStringSubmatch(p); m != nil {
			a.BonusRatioFrom = mustFloat(m[1])
			a.BonusRatioTo = mustFloat(m[2])
		}
		return a
	case strings.Contains(p, "split") || strings.Contains(p, "sub-division") || strings.Contains(p, "subdivision"):
		a := model.CorporateAction{Type: model.ActionSplit, SplitRatioFrom: 1, SplitRatioTo: 1}
		// Splits are announced as old face value to new, e.g. "Rs.10 to Re.1".
		if m := faceValueRe.FindStringSubmatch(p); m != nil {
			a.SplitRatioFrom = mustFloat(m[1])
			a.SplitRatioTo = mustFloat(m[2])
		} else if m := ratioRe.FindStringSubmatch(p); m != nil {
			a.SplitRatioFrom = mustFloat(m[1])
			a.SplitRatioTo = mustFloat(m[2])
		}
		return a
	case strings.Contains(p, "dividend"):
		a := model.CorporateAction{Type: model.ActionDividend}
		if m := amountRe.FindStringSubmatch(p); m != nil {
			a.DividendAmount = mustFloat(m[1])
		}
		return a
	case strings.Contains(p, "right"):
		return model.CorporateAction{Type: model.ActionRights}
	default:
		return model.CorporateAction{Type: model.ActionOther}
	}
}

// faceValueRe catches "rs 10 to rs 2" / "rs.10/- to re.1/-" face-value
// change wording used for splits.
var faceValueRe = regexp.MustCompile(`(?i)r[se]\.?\s*(\d+(?:\.\d+)?)\D*?\bto\b\D*?r[se]\.?\s*(\d+(?:\.\d+)?)`)

func mustFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
