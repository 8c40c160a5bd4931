package views

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Reddy-45/siem/internal/domain"
)

// BlockedList shows block entries in block order with a selectable row.
type BlockedList struct {
	Entries  []domain.BlockEntry
	Reported map[netip.Addr]bool
	Width    int
	cursor
}

func NewBlockedList(visibleCount int) *BlockedList {
	return &BlockedList{Width: 100, cursor: cursor{Visible: visibleCount}}
}

func (l *BlockedList) Update(entries []domain.BlockEntry, reported map[netip.Addr]bool) {
	l.Entries = entries
	l.Reported = reported
	l.clamp(len(l.Entries))
}

func (l *BlockedList) SetVisible(n int) {
	l.Visible = n
	l.clamp(len(l.Entries))
}

func (l *BlockedList) ScrollUp() {
	l.Index--
	l.clamp(len(l.Entries))
}

func (l *BlockedList) ScrollDown() {
	l.Index++
	l.clamp(len(l.Entries))
}

func (l *BlockedList) Selected() (domain.BlockEntry, bool) {
	if l.Index >= 0 && l.Index < len(l.Entries) {
		return l.Entries[l.Index], true
	}
	return domain.BlockEntry{}, false
}

func (l *BlockedList) Render() string {
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	selected := lipgloss.NewStyle().Background(colorSelectBg).Foreground(colorPrimary).Bold(true)

	if len(l.Entries) == 0 {
		return dim.Italic(true).Render("  No blocked addresses")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(
		fmt.Sprintf("  %-17s  %-19s  %-5s  %-20s  %s", "ADDRESS", "BLOCKED AT", "COUNT", "IDENTITY", "REPORT")))
	lines = append(lines, dim.Render("  "+strings.Repeat("─", max(l.Width-4, 10))))

	start, end := l.window(len(l.Entries))
	for i := start; i < end; i++ {
		entry := l.Entries[i]

		prefix := "  "
		addrStyle := red
		if i == l.Index {
			prefix = "▶ "
			addrStyle = selected
		}

		report := amber.Render("pending")
		if l.Reported[entry.SourceAddress] {
			report = green.Render("ready")
		}

		lines = append(lines, fmt.Sprintf("%s%s  %s  %s  %s  %s",
			prefix,
			addrStyle.Render(cell(entry.SourceAddress.String(), 17)),
			muted.Render(entry.BlockedAt.Local().Format("2006-01-02 15:04:05")),
			text.Render(fmt.Sprintf("%5d", entry.TriggerCount)),
			text.Render(cell(entry.TriggerIdentity, 20)),
			report,
		))
	}

	if len(l.Entries) > l.Visible {
		lines = append(lines, dim.Render(fmt.Sprintf("  [%d-%d of %d]", start+1, end, len(l.Entries))))
	}

	return strings.Join(lines, "\n")
}
