package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n\n", r.OldPath, r.NewPath)

	for _, c := range r.Changes {
		switch {
		case c.Old == "" && c.New != "" && strings.HasPrefix(c.Comment, "added"):
			fmt.Fprintf(&b, "  %s: + %s", c.Field, c.New)
		case c.New == "" && c.Old != "" && strings.HasPrefix(c.Comment, "removed"):
			fmt.Fprintf(&b, "  %s: - %s", c.Field, c.Old)
		default:
			fmt.Fprintf(&b, "  %-22s %s → %s", c.Field+":", quoteEmpty(c.Old), quoteEmpty(c.New))
		}
		if c.Comment != "" {
			fmt.Fprintf(&b, "  (%s)", c.Comment)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func quoteEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}
