package domain

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		input    string
		expected Outcome
		wantErr  bool
	}{
		{"", OutcomeUnknown, false},
		{"unknown", OutcomeUnknown, false},
		{"failed", OutcomeFailed, false},
		{"FAILED", OutcomeFailed, false},
		{" failure ", OutcomeFailed, false},
		{"fail", OutcomeFailed, false},
		{"succeeded", OutcomeSucceeded, false},
		{"success", OutcomeSucceeded, false},
		{"ok", OutcomeSucceeded, false},
		{"maybe", OutcomeUnknown, true},
	}

	for _, tc := range tests {
		got, err := ParseOutcome(tc.input)
		if tc.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidOutcome), "input %q", tc.input)
			continue
		}
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.expected, got, "input %q", tc.input)
	}
}

func TestNewIngestRequest(t *testing.T) {
	req, err := NewIngestRequest("", " alice ", "failed", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, UnknownEventType, req.EventType)
	assert.Equal(t, "alice", req.Identity)
	assert.Equal(t, OutcomeFailed, req.Outcome)
	assert.Equal(t, "10.0.0.1", req.SourceAddress.String())
}

func TestNewIngestRequest_Invalid(t *testing.T) {
	_, err := NewIngestRequest("login", "bob", "failed", "not-an-ip")
	assert.ErrorIs(t, err, ErrInvalidSourceAddress)

	_, err = NewIngestRequest("login", "bob", "nope", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestNewIngestRequest_UnmapsIPv4InIPv6(t *testing.T) {
	req, err := NewIngestRequest("login", "", "", "::ffff:192.0.2.7")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", req.SourceAddress.String())
}

func TestNewIngestRequest_ClampsLongFields(t *testing.T) {
	req, err := NewIngestRequest(strings.Repeat("x", 1000), "", "", "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, req.EventType, MaxFieldLength)
}

func TestNewEvent_Enrichment(t *testing.T) {
	req, err := NewIngestRequest("sql_injection", "", "unknown", "10.0.0.9")
	require.NoError(t, err)

	ev := NewEvent(req, NoEnrichment(), 1, time.Unix(100, 0))
	assert.Nil(t, ev.Enrichment)
	assert.Equal(t, 9, ev.RiskScore)

	ev = NewEvent(req, Enrichment{Country: "NL"}, 2, time.Unix(100, 0))
	require.NotNil(t, ev.Enrichment)
	assert.Equal(t, "NL", ev.Enrichment.Country)
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Seq:           7,
		EventType:     "login",
		Identity:      "alice",
		Outcome:       OutcomeFailed,
		SourceAddress: netip.MustParseAddr("10.0.0.1"),
		ObservedAt:    time.Unix(1700000000, 500000000),
		RiskScore:     2,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "10.0.0.1", parsed["source_address"])
	assert.Equal(t, "failed", parsed["outcome"])
	assert.InDelta(t, 1700000000.5, parsed["observed_at"], 0.001)
	assert.NotContains(t, parsed, "enrichment")

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev.SourceAddress, back.SourceAddress)
	assert.WithinDuration(t, ev.ObservedAt, back.ObservedAt, time.Millisecond)
}

func TestEventJSON_LegacyFields(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(
		`{"event_type":"login","username":"alice","status":"failed","ip":"10.0.0.1","timestamp":1760000000.5}`), &ev))

	assert.Equal(t, "alice", ev.Identity)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), ev.SourceAddress)
	assert.Equal(t, int64(1760000000), ev.ObservedAt.Unix())
	assert.Equal(t, 2, ev.RiskScore)
}

func TestEventJSON_RejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		wantErr error
	}{
		{"unknown outcome", `{"outcome":"bogus","source_address":"10.0.0.1","observed_at":1700000000}`, ErrInvalidOutcome},
		{"missing address", `{"outcome":"failed","observed_at":1700000000}`, ErrInvalidSourceAddress},
		{"bad address", `{"outcome":"failed","source_address":"nope","observed_at":1700000000}`, ErrInvalidSourceAddress},
		{"missing timestamp", `{"outcome":"failed","source_address":"10.0.0.1"}`, ErrInvalidObservedAt},
		{"negative timestamp", `{"outcome":"failed","source_address":"10.0.0.1","observed_at":-5}`, ErrInvalidObservedAt},
	}

	for _, tt := range tests {
		tt := tt // per-iteration copy (go 1.21 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			err := json.Unmarshal([]byte(tt.record), &ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRiskScore(t *testing.T) {
	assert.Equal(t, 2, RiskScore("LOGIN_ATTEMPT"))
	assert.Equal(t, 10, RiskScore("rce"))
	assert.Equal(t, 1, RiskScore("something_new"))
}
