package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"BhavEngine/internal/model"
)

// FormatRunReport formats a consolidation run summary into a Telegram
// message.
func FormatRunReport(title string, s *model.RunSummary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n\n", title, time.Now().Format("2006-01-02")))

	b.WriteString(fmt.Sprintf("Canonical records: %d across %d symbols\n", s.TotalRecords, s.UniqueSymbols))
	if !s.FirstDate.IsZero() {
		b.WriteString(fmt.Sprintf("Date range: %s → %s\n",
			s.FirstDate.Format("2006-01-02"), s.LastDate.Format("2006-01-02")))
	}

	if len(s.PerSourceRows) > 0 {
		b.WriteString("\n<b>Per source:</b>\n")
		tags := make([]string, 0, len(s.PerSourceRows))
		for tag := range s.PerSourceRows {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			b.WriteString(fmt.Sprintf("  %s: %d rows\n", tag, s.PerSourceRows[tag]))
		}
	}

	b.WriteString(fmt.Sprintf("\nAdjusted rows: %d\n", s.AdjustedRows))
	if s.MalformedRows > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Malformed rows dropped: %d\n", s.MalformedRows))
	}
	if s.QualitySignals > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Quality signals: %d\n", s.QualitySignals))
	}
	if len(s.FailedSymbols) > 0 {
		b.WriteString(fmt.Sprintf("❌ Fallback symbols (factor 1.0): %s\n",
			strings.Join(s.FailedSymbols, ", ")))
	}

	b.WriteString(fmt.Sprintf("\nElapsed: %v", s.Elapsed.Round(time.Millisecond)))
	return b.String()
}

// FormatFailure formats a run failure notice.
func FormatFailure(title string, err error) string {
	return fmt.Sprintf("❌ <b>%s failed</b> | %s\n\n%v",
		title, time.Now().Format("2006-01-02 15:04"), err)
}
