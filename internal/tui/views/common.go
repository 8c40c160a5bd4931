// Package views renders the dashboard panels. Views are plain structs with
// a Render method; the bubbletea program in package tui owns them.
package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/pkg/sanitize"
)

var (
	colorPrimary    = lipgloss.Color("#00ff41")
	colorPrimaryDim = lipgloss.Color("#00aa2a")
	colorAmber      = lipgloss.Color("#ffb000")
	colorRed        = lipgloss.Color("#ff3333")
	colorCyan       = lipgloss.Color("#00b8ff")
	colorText       = lipgloss.Color("#e5e5e5")
	colorMuted      = lipgloss.Color("#707070")
	colorDim        = lipgloss.Color("#404040")
	colorGhost      = lipgloss.Color("#252525")
	colorSelectBg   = lipgloss.Color("#003300")
)

// cursor tracks the selected row and the first visible row of a list.
type cursor struct {
	Index   int
	Offset  int
	Visible int
}

func (c *cursor) clamp(n int) {
	if c.Visible <= 0 {
		c.Visible = 1
	}
	if n == 0 {
		c.Index, c.Offset = 0, 0
		return
	}
	if c.Index >= n {
		c.Index = n - 1
	}
	if c.Index < 0 {
		c.Index = 0
	}
	if c.Index < c.Offset {
		c.Offset = c.Index
	}
	if c.Index >= c.Offset+c.Visible {
		c.Offset = c.Index - c.Visible + 1
	}
	if maxOffset := n - c.Visible; c.Offset > maxOffset {
		c.Offset = max(maxOffset, 0)
	}
}

func (c *cursor) window(n int) (start, end int) {
	c.clamp(n)
	return c.Offset, min(c.Offset+c.Visible, n)
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s[:length]
	}
	return s + strings.Repeat(" ", length-len(s))
}

// cell sanitizes untrusted text for a fixed-width column.
func cell(s string, width int) string {
	return padRight(sanitize.Line(s, width), width)
}

func fmtLarge(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func location(e *domain.Enrichment) string {
	if e == nil {
		return ""
	}
	switch {
	case e.City != "" && e.Country != "":
		return e.City + ", " + e.Country
	case e.Country != "":
		return e.Country
	default:
		return e.Network
	}
}
