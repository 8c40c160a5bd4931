package tui

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestApp_PollAndUnblockFlow(t *testing.T) {
	engine, client := newService(t)
	for i := 0; i < 5; i++ {
		ingest(t, engine, "203.0.113.50", "root", "failed")
	}

	a := NewApp(client, time.Second)
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	msg := a.poll()()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok, "poll against a live service yields a snapshot")
	a.Update(snap)

	assert.Contains(t, a.View(), "203.0.113.50")
	assert.Contains(t, a.View(), "1 BLOCKED")

	a.Update(key("tab"))
	a.Update(key("tab"))
	assert.Equal(t, ViewBlocked, a.model.ActiveView)

	a.Update(key("enter"))
	require.True(t, a.inspector.Visible)
	assert.Contains(t, a.View(), "Report pending")

	_, cmd := a.Update(key("u"))
	require.NotNil(t, cmd)
	result := cmd()
	unblocked, ok := result.(unblockMsg)
	require.True(t, ok)
	require.NoError(t, unblocked.err)
	assert.False(t, engine.IsBlocked(netip.MustParseAddr("203.0.113.50")))

	_, cmd = a.Update(unblocked)
	assert.False(t, a.inspector.Visible)
	assert.Contains(t, a.notice, "unblocked")
	require.NotNil(t, cmd, "unblock triggers a refresh")
}

func TestApp_PollErrorKeepsLastSnapshot(t *testing.T) {
	engine, client := newService(t)
	ingest(t, engine, "198.51.100.1", "alice", "failed")

	a := NewApp(client, time.Second)
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	a.Update(a.poll()())

	a.Update(pollErrMsg{err: errors.New("connection refused")})
	view := a.View()
	assert.Contains(t, view, "UNREACHABLE")
	assert.Contains(t, view, "198.51.100.1")
}

func TestApp_TickSkipsWhilePolling(t *testing.T) {
	_, client := newService(t)
	a := NewApp(client, time.Second)

	a.Init()
	assert.True(t, a.polling)

	_, cmd := a.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	assert.True(t, a.polling)

	a.Update(pollErrMsg{err: errors.New("timeout")})
	assert.False(t, a.polling)
}

func TestApp_InspectRequiresBlockedSelection(t *testing.T) {
	engine, client := newService(t)
	ingest(t, engine, "198.51.100.1", "alice", "failed")

	a := NewApp(client, time.Second)
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	a.Update(a.poll()())

	a.Update(key("enter"))
	assert.False(t, a.inspector.Visible)
	assert.NotEmpty(t, a.notice)

	_, cmd := a.Update(key("u"))
	assert.Nil(t, cmd)
}

func TestApp_QuitKey(t *testing.T) {
	_, client := newService(t)
	a := NewApp(client, time.Second)

	_, cmd := a.Update(key("q"))
	require.NotNil(t, cmd)
	assert.True(t, a.quitting)
	assert.Contains(t, a.View(), "terminated")
}
