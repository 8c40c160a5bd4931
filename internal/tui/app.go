// Package tui is a terminal dashboard for a running siem service. It polls
// the HTTP query surface and renders events, ranked sources, blocks and
// incident reports.
package tui

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Reddy-45/siem/internal/tui/views"
)

const minPollInterval = 200 * time.Millisecond

type App struct {
	client   *Client
	interval time.Duration

	model      *Model
	throughput *views.Throughput
	events     *views.EventList
	sources    *views.SourceList
	blocked    *views.BlockedList
	status     *views.Status
	inspector  *views.ReportInspector

	ready    bool
	quitting bool
	polling  bool
	width    int
	height   int
	notice   string
}

func NewApp(client *Client, interval time.Duration) *App {
	if interval < minPollInterval {
		interval = minPollInterval
	}
	return &App{
		client:     client,
		interval:   interval,
		model:      NewModel(),
		throughput: views.NewThroughput(80),
		events:     views.NewEventList(15),
		sources:    views.NewSourceList(100),
		blocked:    views.NewBlockedList(15),
		status:     views.NewStatus(100, interval),
		inspector:  views.NewReportInspector(),
	}
}

// SetThreshold highlights sources at or above the service's threshold.
func (a *App) SetThreshold(threshold int) { a.sources.Threshold = threshold }

type tickMsg time.Time

type snapshotMsg Snapshot

type pollErrMsg struct{ err error }

type unblockMsg struct {
	addr netip.Addr
	err  error
}

func (a *App) Init() tea.Cmd {
	a.polling = true
	return tea.Batch(a.poll(), a.tick())
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := a.client.Snapshot(context.Background())
		if err != nil {
			return pollErrMsg{err: err}
		}
		return snapshotMsg(snap)
	}
}

func (a *App) unblock(addr netip.Addr) tea.Cmd {
	return func() tea.Msg {
		return unblockMsg{addr: addr, err: a.client.Unblock(context.Background(), addr)}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
	case tickMsg:
		if a.polling {
			return a, a.tick()
		}
		a.polling = true
		return a, tea.Batch(a.poll(), a.tick())
	case snapshotMsg:
		a.polling = false
		a.apply(Snapshot(msg))
	case pollErrMsg:
		a.polling = false
		a.model.RecordError(msg.err)
		a.refreshStatus()
	case unblockMsg:
		switch {
		case msg.err == nil:
			a.notice = fmt.Sprintf("unblocked %s", msg.addr)
			a.inspector.Close()
		case errors.Is(msg.err, ErrNotBlocked):
			a.notice = fmt.Sprintf("%s is not blocked", msg.addr)
		default:
			a.notice = "unblock failed: " + msg.err.Error()
		}
		if !a.polling {
			a.polling = true
			return a, a.poll()
		}
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if a.inspector.Visible {
		switch msg.String() {
		case "esc", "q":
			a.inspector.Close()
		case "up", "k":
			a.inspector.ScrollUp()
		case "down", "j":
			a.inspector.ScrollDown()
		case "u":
			return a.unblock(a.inspector.Entry.SourceAddress)
		case "ctrl+c":
			a.quitting = true
			return tea.Quit
		}
		return nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		a.quitting = true
		return tea.Quit
	case "tab":
		a.model.NextView()
		a.notice = ""
	case "up", "k":
		a.scroll(-1)
	case "down", "j":
		a.scroll(1)
	case "enter":
		a.inspectSelected()
	case "u":
		if addr, ok := a.selectedBlockedAddress(); ok {
			return a.unblock(addr)
		}
	case "r":
		if !a.polling {
			a.polling = true
			return a.poll()
		}
	}
	return nil
}

func (a *App) scroll(delta int) {
	switch a.model.ActiveView {
	case ViewEvents:
		if delta < 0 {
			a.events.ScrollUp()
		} else {
			a.events.ScrollDown()
		}
	case ViewBlocked:
		if delta < 0 {
			a.blocked.ScrollUp()
		} else {
			a.blocked.ScrollDown()
		}
	}
}

// selectedBlockedAddress returns the address under the cursor when it is
// currently blocked.
func (a *App) selectedBlockedAddress() (netip.Addr, bool) {
	switch a.model.ActiveView {
	case ViewBlocked:
		if entry, ok := a.blocked.Selected(); ok {
			return entry.SourceAddress, true
		}
	case ViewEvents:
		if ev, ok := a.events.Selected(); ok {
			if _, blocked := a.model.BlockFor(ev.SourceAddress); blocked {
				return ev.SourceAddress, true
			}
		}
	}
	return netip.Addr{}, false
}

func (a *App) inspectSelected() {
	addr, ok := a.selectedBlockedAddress()
	if !ok {
		a.notice = "select a blocked address to inspect"
		return
	}
	entry, _ := a.model.BlockFor(addr)
	a.inspector.Open(entry, a.model.ReportFor(addr))
}

func (a *App) resize(width, height int) {
	a.width, a.height = width, height
	a.ready = true

	a.events.Width = width - 4
	a.blocked.Width = width - 4
	a.sources.Width = width - 4
	a.status.Width = width
	a.throughput.SetWidth(width - 20)

	contentHeight := max(height-12, 5)
	a.events.SetVisible(contentHeight)
	a.blocked.SetVisible(contentHeight)
	a.sources.VisibleCount = contentHeight

	a.inspector.SetDimensions(width-4, height-2)
}

func (a *App) apply(snap Snapshot) {
	a.model.Apply(snap)

	a.events.Update(snap.Events)
	a.sources.Update(convertSources(a.model.GetSources()))

	reported := make(map[netip.Addr]bool, len(snap.Reports))
	for _, r := range snap.Reports {
		if r != nil {
			reported[r.SourceAddress] = true
		}
	}
	a.blocked.Update(snap.Blocked, reported)
	a.throughput.Update(a.model.Rate())

	if a.inspector.Visible {
		a.inspector.Refresh(a.model.ReportFor(a.inspector.Entry.SourceAddress))
	}
	a.refreshStatus()
}

func (a *App) refreshStatus() {
	snap := a.model.GetSnapshot()
	a.status.Update(views.StatusInfo{
		Events:   len(snap.Events),
		Failed:   a.model.FailedEvents(),
		Blocked:  len(snap.Blocked),
		Reports:  len(snap.Reports),
		Rate:     a.model.Rate(),
		LastPoll: a.model.LastFetch(),
		Err:      a.model.LastError(),
	})
}

func convertSources(entries []*SourceEntry) []*views.SourceRow {
	rows := make([]*views.SourceRow, len(entries))
	for i, e := range entries {
		lastSeen := ""
		if !e.LastSeen.IsZero() {
			lastSeen = e.LastSeen.Local().Format("15:04:05")
		}
		rows[i] = &views.SourceRow{
			Address:    e.Address.String(),
			Failures:   e.Failures,
			Events:     e.Events,
			LastSeen:   lastSeen,
			Identities: e.Identities,
			Blocked:    e.Blocked,
		}
	}
	return rows
}

func (a *App) View() string {
	if a.quitting {
		return "\n  Session terminated.\n\n"
	}
	if !a.ready {
		return "\n  Connecting...\n\n"
	}
	if a.inspector.Visible {
		return a.inspector.Render()
	}

	var b strings.Builder

	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(TextDim.Render(strings.Repeat("─", a.width)))
	b.WriteString("\n")

	b.WriteString(a.throughput.Render())
	b.WriteString("\n\n")

	var content string
	switch a.model.ActiveView {
	case ViewSources:
		content = a.sources.Render()
	case ViewBlocked:
		content = a.blocked.Render()
	default:
		content = a.events.Render()
	}
	b.WriteString(TextMuted.Render("  " + a.model.ViewName()))
	b.WriteString("\n")
	b.WriteString(content)

	b.WriteString("\n\n")
	b.WriteString(a.status.Render())
	b.WriteString("\n")
	b.WriteString(a.renderHelp())

	return b.String()
}

func (a *App) renderHeader() string {
	state := TextPrimary.Render("MONITORING")
	snap := a.model.GetSnapshot()
	if err := a.model.LastError(); err != nil {
		state = TextRed.Render("UNREACHABLE")
	} else if len(snap.Blocked) > 0 {
		state = TextRed.Render(fmt.Sprintf("%d BLOCKED", len(snap.Blocked)))
	}

	header := fmt.Sprintf("  %s  %s  %s %s",
		TextTitle.Render("SIEM"), state,
		TextDim.Render("SRV:"), a.client.BaseURL())
	if a.notice != "" {
		header += "  " + TextAmber.Render(a.notice)
	}
	return header
}

func (a *App) renderHelp() string {
	return TextDim.Render(fmt.Sprintf("  %s [%s]  %s scroll  %s inspect  %s unblock  %s refresh  %s quit",
		TextKey.Render("TAB"), a.model.ViewName(), TextKey.Render("↑↓"), TextKey.Render("ENTER"),
		TextKey.Render("u"), TextKey.Render("r"), TextKey.Render("q")))
}

func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
