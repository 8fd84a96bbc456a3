package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mshafei721/ADOS-sub001/memory"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	readyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// renderStatus draws tier readiness followed by a per-crew table.
func renderStatus(st memory.Status) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Memory tiers"))
	b.WriteString("\n")
	for _, t := range memory.Tiers {
		state := downStyle.Render("down")
		if st.Tiers.Ready(t) {
			state = readyStyle.Render("ready")
		}
		fmt.Fprintf(&b, "  %-8s %s\n", t, state)
	}
	if st.VectorDB != nil {
		fmt.Fprintf(&b, "  collection %s: %d documents\n", st.VectorDB.CollectionName, st.VectorDB.DocumentCount)
	}

	crews := make(map[string]struct{})
	for name := range st.CrewMemory {
		crews[name] = struct{}{}
	}
	for name := range st.SessionMemory {
		crews[name] = struct{}{}
	}
	if len(crews) == 0 {
		b.WriteString("\nno crew memory\n")
		return b.String()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CREW", "ENTRIES", "SIZE (MB)", "SESSION")
	for _, name := range sortedKeys(crews) {
		entries, size, session := "-", "-", "-"
		if cs, ok := st.CrewMemory[name]; ok {
			entries = strconv.Itoa(cs.EntriesCount)
			size = strconv.FormatFloat(cs.SizeMB, 'f', 2, 64)
		}
		if ss, ok := st.SessionMemory[name]; ok {
			session = fmt.Sprintf("%d/%d", ss.EntriesCount, ss.MaxEntries)
		}
		t.Row(name, entries, size, session)
	}

	b.WriteString("\n")
	b.WriteString(t.Render())
	return b.String()
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
