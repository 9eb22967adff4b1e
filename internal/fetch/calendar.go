package fetch

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers which calendar dates are trading days on the
// exchange the feeds cover.
type TradingCalendar struct {
	cal      *calendar.Calendar
	fallback bool
}

// NewTradingCalendar loads the exchange calendar by MIC (ISO 10383), e.g.
// "xbom". An unknown MIC degrades to a plain Mon-Fri week.
func NewTradingCalendar(mic string) *TradingCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("[WARN] no calendar for MIC %q, falling back to Mon-Fri", mic)
		return &TradingCalendar{fallback: true}
	}
	return &TradingCalendar{cal: cal}
}

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.fallback {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(date)
}

// TradingDays lists the trading days in [from, to], inclusive.
func (tc *TradingCalendar) TradingDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
