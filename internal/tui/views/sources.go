package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type SourceRow struct {
	Address    string
	Failures   int
	Events     int
	LastSeen   string
	Identities []string
	Blocked    bool
}

// SourceList ranks source addresses by failed attempts.
type SourceList struct {
	Rows         []*SourceRow
	Width        int
	VisibleCount int
	Threshold    int // Failures at which a row is drawn as critical (0: relative only)
}

func NewSourceList(width int) *SourceList {
	return &SourceList{Width: width, VisibleCount: 25}
}

func (v *SourceList) Update(rows []*SourceRow) { v.Rows = rows }

func (v *SourceList) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	greenDim := lipgloss.NewStyle().Foreground(colorPrimaryDim)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)

	if len(v.Rows) == 0 {
		return dim.Italic(true).Render("  No sources")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(fmt.Sprintf(" %-3s %-17s %-12s %-6s %-10s %s",
		"#", "ADDRESS", "FAILED", "TOTAL", "LAST", "IDENTITIES")))
	lines = append(lines, dim.Render(strings.Repeat("─", max(v.Width, 10))))

	maxFailures := 0
	for _, row := range v.Rows {
		if row.Failures > maxFailures {
			maxFailures = row.Failures
		}
	}

	visible := v.Rows
	if len(visible) > v.VisibleCount {
		visible = visible[:v.VisibleCount]
	}

	for i, row := range visible {
		idx := muted.Render(fmt.Sprintf("%2d.", i+1))

		style := greenDim
		ratio := 0.0
		if maxFailures > 0 {
			ratio = float64(row.Failures) / float64(maxFailures)
		}
		switch {
		case row.Blocked || (v.Threshold > 0 && row.Failures >= v.Threshold):
			style = red.Bold(true)
		case ratio > 0.6:
			style = amber.Bold(true)
		case row.Failures > 0:
			style = green
		}

		barWidth := 6
		fill := min(int(ratio*float64(barWidth)), barWidth)
		bar := strings.Repeat("█", fill) + strings.Repeat("░", barWidth-fill)
		failed := style.Render(fmt.Sprintf("%s %5s", bar, fmtLarge(int64(row.Failures))))

		addr := row.Address
		if row.Blocked {
			addr = "⊘ " + addr
		}

		identities := make([]string, 0, len(row.Identities))
		for _, id := range row.Identities {
			identities = append(identities, cell(id, 24))
		}
		idStr := strings.Join(identities, ", ")
		maxLen := max(v.Width-56, 10)
		if len(idStr) > maxLen {
			idStr = idStr[:maxLen-3] + "..."
		}

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s %s",
			idx,
			style.Render(padRight(addr, 17)),
			failed,
			muted.Render(padRight(fmtLarge(int64(row.Events)), 6)),
			muted.Render(padRight(row.LastSeen, 10)),
			text.Render(strings.TrimSpace(idStr)),
		))
	}

	if len(v.Rows) > v.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [showing %d of %d sources]", v.VisibleCount, len(v.Rows))))
	}

	return strings.Join(lines, "\n")
}
