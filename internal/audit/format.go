package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.SessionID
	if label == "" {
		label = "all"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder

	// Header
	firstTime := formatDateRange(result.Summary.FirstTimestamp)
	lastTime := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("Session: %s | %s to %s UTC\n", label, firstTime, lastTime))
	b.WriteString(separator + "\n")

	// Entries
	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		decision := strings.ToUpper(e.Decision)
		category := truncate(e.Category, 17)
		surface := truncate(e.Surface, 13)
		target := truncate(e.Target, 40)

		tag := ""
		if e.Decision != "allow" && e.Reason != "" {
			tag = "  (" + e.Reason + ")"
		}

		b.WriteString(fmt.Sprintf("%-10s %-6d %-6s %-17s %-13s %-40s%s\n",
			ts, e.Seq, decision, category, surface, target, tag))
	}

	// Footer
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

// FormatEntry renders one entry as a single line, for tailing.
func FormatEntry(e Entry) string {
	line := fmt.Sprintf("%s #%d %s %s/%s %s",
		formatTimeOnly(e.Timestamp), e.Seq, strings.ToUpper(e.Decision), e.Category, e.Surface, e.Target)
	if e.Reason != "" {
		line += " (" + e.Reason + ")"
	}
	return line
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.AllowCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.AllowCount))
	}
	if s.BlockCount > 0 {
		parts = append(parts, fmt.Sprintf("%d block", s.BlockCount))
	}
	if s.SkipCount > 0 {
		parts = append(parts, fmt.Sprintf("%d skip", s.SkipCount))
	}
	if s.XfailCount > 0 {
		parts = append(parts, fmt.Sprintf("%d xfail", s.XfailCount))
	}

	cats := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	byCat := make([]string, 0, len(cats))
	for _, c := range cats {
		byCat = append(byCat, fmt.Sprintf("%s=%d", c, s.ByCategory[c]))
	}

	return fmt.Sprintf("Summary: %s | Categories: %s\n",
		strings.Join(parts, ", "), strings.Join(byCat, " "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
