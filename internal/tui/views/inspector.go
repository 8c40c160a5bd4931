package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

// ReportInspector is a full-screen view of one block and its incident
// report.
type ReportInspector struct {
	Entry   domain.BlockEntry
	Report  *domain.IncidentReport
	Width   int
	Height  int
	ScrollY int
	Visible bool
}

func NewReportInspector() *ReportInspector {
	return &ReportInspector{Width: 80, Height: 24}
}

// Open shows entry. report may be nil while generation is pending.
func (p *ReportInspector) Open(entry domain.BlockEntry, report *domain.IncidentReport) {
	p.Entry = entry
	p.Report = report
	p.ScrollY = 0
	p.Visible = true
}

// Refresh swaps in a report that arrived while the inspector was open.
func (p *ReportInspector) Refresh(report *domain.IncidentReport) {
	if p.Visible && p.Report == nil && report != nil {
		p.Report = report
	}
}

func (p *ReportInspector) SetDimensions(width, height int) {
	p.Width = width
	p.Height = height
}

func (p *ReportInspector) ScrollUp() {
	if p.ScrollY > 0 {
		p.ScrollY--
	}
}

func (p *ReportInspector) ScrollDown() {
	p.ScrollY++
}

func (p *ReportInspector) Close() {
	p.Report = nil
	p.Visible = false
}

func (p *ReportInspector) Render() string {
	if !p.Visible {
		return ""
	}

	contentWidth := max(p.Width-4, 20)

	header := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	label := lipgloss.NewStyle().Foreground(colorAmber).Width(14)
	value := lipgloss.NewStyle().Foreground(colorText)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	critical := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	narrative := lipgloss.NewStyle().Foreground(colorCyan).Width(contentWidth)

	field := func(name, v string) string {
		return fmt.Sprintf("%s %s", label.Render(name), value.Render(v))
	}
	rule := dim.Render(strings.Repeat("─", contentWidth))

	var lines []string
	lines = append(lines, header.Render("╔═══ INCIDENT INSPECTOR ═══╗"))
	lines = append(lines, rule)

	lines = append(lines, header.Render("▶ BLOCK"))
	lines = append(lines, fmt.Sprintf("%s %s", label.Render("Address:"), critical.Render(p.Entry.SourceAddress.String())))
	lines = append(lines, field("Blocked at:", p.Entry.BlockedAt.Local().Format("2006-01-02 15:04:05")))
	lines = append(lines, field("Attempts:", fmt.Sprintf("%d", p.Entry.TriggerCount)))
	if p.Entry.TriggerIdentity != "" {
		lines = append(lines, field("Identity:", sanitize.Line(p.Entry.TriggerIdentity, contentWidth)))
	}

	lines = append(lines, "", rule)
	lines = append(lines, header.Render("▶ INCIDENT REPORT"))

	if p.Report == nil {
		lines = append(lines, dim.Italic(true).Render("Report pending"))
	} else {
		r := p.Report
		if r.Enrichment != nil {
			if loc := location(r.Enrichment); loc != "" {
				lines = append(lines, field("Location:", sanitize.Line(loc, contentWidth)))
			}
			if r.Enrichment.Network != "" {
				lines = append(lines, field("Network:", sanitize.Line(r.Enrichment.Network, contentWidth)))
			}
		}
		lines = append(lines, field("Generator:", sanitize.Line(r.Generator, contentWidth)))
		lines = append(lines, field("Generated:", r.GeneratedAt.Local().Format("2006-01-02 15:04:05")))
		lines = append(lines, field("Report ID:", r.ID))
		lines = append(lines, "")

		text := narrative.Render(sanitize.Narrative(r.Narrative, 0))
		lines = append(lines, strings.Split(text, "\n")...)
	}

	lines = append(lines, "", rule)
	lines = append(lines, dim.Render("[ESC] Close   [↑/↓] Scroll   [U] Unblock"))

	if p.ScrollY >= len(lines) {
		p.ScrollY = len(lines) - 1
	}
	if p.ScrollY > 0 {
		lines = lines[p.ScrollY:]
	}
	if limit := p.Height - 2; limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorPrimary).
		Padding(0, 1).
		Width(p.Width).
		Height(p.Height).
		Render(strings.Join(lines, "\n"))
}
