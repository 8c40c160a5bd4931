package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Reddy-45/siem/internal/domain"
)

// EventList shows stored events, newest first.
type EventList struct {
	Events []domain.Event
	Width  int
	cursor
}

func NewEventList(visibleCount int) *EventList {
	return &EventList{Width: 100, cursor: cursor{Visible: visibleCount}}
}

func (l *EventList) Update(events []domain.Event) {
	l.Events = make([]domain.Event, len(events))
	for i, ev := range events {
		l.Events[len(events)-1-i] = ev
	}
	l.clamp(len(l.Events))
}

func (l *EventList) SetVisible(n int) {
	l.Visible = n
	l.clamp(len(l.Events))
}

func (l *EventList) ScrollUp() {
	l.Index--
	l.clamp(len(l.Events))
}

func (l *EventList) ScrollDown() {
	l.Index++
	l.clamp(len(l.Events))
}

func (l *EventList) Selected() (domain.Event, bool) {
	if l.Index >= 0 && l.Index < len(l.Events) {
		return l.Events[l.Index], true
	}
	return domain.Event{}, false
}

func (l *EventList) Render() string {
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	selected := lipgloss.NewStyle().Background(colorSelectBg).Foreground(colorPrimary)

	if len(l.Events) == 0 {
		return dim.Italic(true).Render("  No events")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(
		fmt.Sprintf("  %-8s  %-4s  %-17s  %-14s  %-3s  %-16s  %s",
			"TIME", "OUT", "ADDRESS", "TYPE", "RSK", "IDENTITY", "LOCATION")))
	lines = append(lines, dim.Render("  "+strings.Repeat("─", max(l.Width-4, 10))))

	start, end := l.window(len(l.Events))
	for i := start; i < end; i++ {
		ev := l.Events[i]
		isSelected := i == l.Index

		prefix := "  "
		timeStr := dim.Render(ev.ObservedAt.Local().Format("15:04:05"))
		addrStyle := text
		if isSelected {
			prefix = "▶ "
			timeStr = selected.Render(ev.ObservedAt.Local().Format("15:04:05"))
			addrStyle = selected.Bold(true)
		}

		var outcome string
		switch ev.Outcome {
		case domain.OutcomeFailed:
			outcome = red.Bold(true).Render("FAIL")
		case domain.OutcomeSucceeded:
			outcome = green.Render("OK  ")
		default:
			outcome = muted.Render("UNK ")
		}

		riskStyle := green
		if ev.RiskScore >= 8 {
			riskStyle = red.Bold(true)
		} else if ev.RiskScore >= 5 {
			riskStyle = amber.Bold(true)
		}

		locWidth := max(l.Width-80, 10)
		lines = append(lines, fmt.Sprintf("%s%s  %s  %s  %s  %s   %s  %s",
			prefix,
			timeStr,
			outcome,
			addrStyle.Render(cell(ev.SourceAddress.String(), 17)),
			green.Render(cell(ev.EventType, 14)),
			riskStyle.Render(fmt.Sprintf("%2d", ev.RiskScore)),
			text.Render(cell(ev.Identity, 16)),
			muted.Render(cell(location(ev.Enrichment), locWidth)),
		))
	}

	if len(l.Events) > l.Visible {
		lines = append(lines, dim.Render(fmt.Sprintf("  [%d-%d of %d]", start+1, end, len(l.Events))))
	}

	return strings.Join(lines, "\n")
}
