package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TickerScreen/internal/ingest"
	"TickerScreen/internal/screen"
)

// maxListed caps how many matches go into one Telegram message.
const maxListed = 50

// FormatScreenReport formats a screen result into a Telegram message.
func FormatScreenReport(res *screen.Result, now time.Time) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📐 <b>Consolidation screen</b> | %s\n", now.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("policy: %s | evaluated: %d | matched: %d | skipped: %d\n\n",
		res.Policy, res.Evaluated, len(res.Matches), len(res.Skipped)))

	if len(res.Matches) == 0 {
		b.WriteString("No consolidating symbols.\n")
	}
	for i, m := range res.Matches {
		if i == maxListed {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(res.Matches)-maxListed))
			break
		}
		l := m.Latest
		b.WriteString(fmt.Sprintf("<b>%s</b> %s close %.2f vol %.0f\n",
			html.EscapeString(m.Symbol), l.Time().Format("01-02"), l.Close, l.Volume))
	}

	if len(res.Skipped) > 0 {
		keys := make([]string, 0, len(res.Skipped))
		for _, s := range res.Skipped {
			keys = append(keys, s.Key)
		}
		b.WriteString(fmt.Sprintf("\nskipped: %s\n", html.EscapeString(truncateList(keys, 20))))
	}
	return b.String()
}

// FormatIngestReport formats an ingestion run summary.
func FormatIngestReport(rep *ingest.Report, err error) string {
	var b strings.Builder
	status := "✅ committed"
	if err != nil || !rep.Committed {
		status = "❌ not committed"
	}
	b.WriteString(fmt.Sprintf("📥 <b>Download</b> | %s\n", status))
	b.WriteString(fmt.Sprintf("dates: %d requested, %d fetched, %d skipped\n", rep.Requested, len(rep.Fetched), len(rep.Skipped)))
	b.WriteString(fmt.Sprintf("rows upserted: %d\n", rep.Rows))
	for _, s := range rep.Skipped {
		b.WriteString(fmt.Sprintf("  skipped %s: %s\n", s.Key, html.EscapeString(s.Reason)))
	}
	if err != nil {
		b.WriteString(fmt.Sprintf("error: %s\n", html.EscapeString(err.Error())))
	}
	return b.String()
}

func truncateList(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s (+%d)", strings.Join(items[:n], ", "), len(items)-n)
}
