package views

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type StatusInfo struct {
	Events   int
	Failed   int
	Blocked  int
	Reports  int
	Rate     float64
	LastPoll time.Time
	Err      error
}

type Status struct {
	Width     int
	Info      StatusInfo
	Interval  time.Duration // Expected time between polls
	StartTime time.Time
}

func NewStatus(width int, interval time.Duration) *Status {
	return &Status{Width: width, Interval: interval, StartTime: time.Now()}
}

func (s *Status) Update(info StatusInfo) { s.Info = info }

func (s *Status) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	greenDim := lipgloss.NewStyle().Foreground(colorPrimaryDim)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	border := lipgloss.NewStyle().Foreground(lipgloss.Color("#2a2a2a"))

	failed := green
	if s.Info.Events > 0 && s.Info.Failed*2 > s.Info.Events {
		failed = red.Bold(true)
	} else if s.Info.Failed > 0 {
		failed = amber.Bold(true)
	}

	blocked := green
	if s.Info.Blocked > 0 {
		blocked = red.Bold(true)
	}

	reports := greenDim
	if s.Info.Reports < s.Info.Blocked {
		reports = amber
	}

	items := []string{
		s.heartbeat(green, greenDim, amber, red),
		muted.Render("RATE:") + " " + green.Render(fmt.Sprintf("%.1f/s", s.Info.Rate)),
		muted.Render("EVT:") + " " + green.Render(fmtLarge(int64(s.Info.Events))),
		muted.Render("FAIL:") + " " + failed.Render(fmtLarge(int64(s.Info.Failed))),
		muted.Render("BLK:") + " " + blocked.Render(fmtLarge(int64(s.Info.Blocked))),
		muted.Render("RPT:") + " " + reports.Render(fmtLarge(int64(s.Info.Reports))),
		muted.Render("UP:") + " " + green.Render(fmtUptime(time.Since(s.StartTime).Round(time.Second))),
	}

	sep := border.Render(" │ ")
	line := ""
	for i, item := range items {
		if i > 0 {
			line += sep
		}
		line += item
	}

	return lipgloss.NewStyle().
		Width(s.Width).
		Padding(0, 1).
		Background(lipgloss.Color("#0a0a0a")).
		Render(line)
}

func (s *Status) heartbeat(active, dim, warn, crit lipgloss.Style) string {
	label := lipgloss.NewStyle().Foreground(colorMuted).Render("SRV:")
	if s.Info.Err != nil {
		return label + " " + crit.Bold(true).Render("OFFLINE")
	}
	if s.Info.LastPoll.IsZero() {
		return label + " " + warn.Render("○")
	}

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	elapsed := time.Since(s.Info.LastPoll)

	switch {
	case elapsed < interval+interval/2:
		return label + " " + active.Bold(true).Render("●")
	case elapsed < 3*interval:
		return label + " " + dim.Render("●")
	case elapsed < 10*interval:
		return label + " " + warn.Render("○")
	default:
		return label + " " + crit.Render("○")
	}
}

func fmtUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, sec)
}
