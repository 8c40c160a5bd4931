package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var signalChars = []rune{'⎽', '⎼', '─', '⎻', '⎺'}

// Throughput draws the ingest rate history as an oscilloscope trace.
type Throughput struct {
	Data  []float64
	Width int

	// Rates above these draw amber and red.
	WarnRate     float64
	CriticalRate float64
}

func NewThroughput(width int) *Throughput {
	if width <= 0 {
		width = 60
	}
	return &Throughput{
		Data:         make([]float64, width),
		Width:        width,
		WarnRate:     10,
		CriticalRate: 50,
	}
}

func (t *Throughput) Update(value float64) {
	t.Data = append(t.Data[1:], value)
}

func (t *Throughput) SetWidth(width int) {
	if width <= 0 || width == t.Width {
		return
	}
	old := t.Data
	t.Width = width
	t.Data = make([]float64, width)
	if len(old) > width {
		old = old[len(old)-width:]
	}
	copy(t.Data[width-len(old):], old)
}

func (t *Throughput) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	ghost := lipgloss.NewStyle().Foreground(colorGhost)

	var current, maxVal float64
	for _, v := range t.Data {
		maxVal = max(maxVal, v)
	}
	if len(t.Data) > 0 {
		current = t.Data[len(t.Data)-1]
	}
	maxVal = max(maxVal, 1)

	color := green
	switch {
	case current > t.CriticalRate:
		color = red
	case current > t.WarnRate:
		color = amber
	}

	var trace strings.Builder
	trace.WriteString(" ")
	for i, v := range t.Data {
		if i > 0 && i%10 == 0 {
			trace.WriteString(ghost.Render("│"))
			continue
		}
		if v <= 0 {
			trace.WriteString(dim.Render(string(signalChars[0])))
			continue
		}
		level := min(int(v/maxVal*float64(len(signalChars)-1)), len(signalChars)-1)
		trace.WriteString(color.Render(string(signalChars[level])))
	}

	trace.WriteString(color.Bold(true).Render(fmt.Sprintf(" ▶ %.1f ev/s", current)))
	return trace.String()
}
