package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the ISO-8601 layout entries are stamped with.
// Fixed width keeps lexical and chronological order identical within one zone.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one immutable memory line. Ownership belongs to the store holding it.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// NewEntry stamps content with at.
func NewEntry(content string, at time.Time) Entry {
	return Entry{
		Timestamp: at.Format(TimestampLayout),
		Content:   content,
	}
}

// Format renders the entry for prompt injection: "[timestamp] content".
func (e Entry) Format() string {
	return fmt.Sprintf("[%s] %s", e.Timestamp, e.Content)
}

// FormatEntries renders entries one per line in the order given.
func FormatEntries(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Format())
	}
	return strings.Join(lines, "\n")
}

// truncate truncates a string to at most maxLen bytes, adding "..." if
// truncated. The cut never splits a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
