package input

import (
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/domain"
)

func TestJSONEventParser(t *testing.T) {
	parser := NewJSONEventParser()

	tests := []struct {
		name         string
		line         string
		wantErr      error
		wantType     string
		wantIdentity string
		wantOutcome  domain.Outcome
		wantAddr     string
	}{
		{
			name:         "form field names",
			line:         `{"event_type":"login","username":"alice","status":"failed","ip":"10.0.0.1"}`,
			wantType:     "login",
			wantIdentity: "alice",
			wantOutcome:  domain.OutcomeFailed,
			wantAddr:     "10.0.0.1",
		},
		{
			name:         "aliases",
			line:         `{"event_type":"auth","identity":"bob","outcome":"success","source_address":"2001:db8::1"}`,
			wantType:     "auth",
			wantIdentity: "bob",
			wantOutcome:  domain.OutcomeSucceeded,
			wantAddr:     "2001:db8::1",
		},
		{
			name:        "missing fields default",
			line:        `{"ip":"::ffff:192.0.2.1"}`,
			wantType:    domain.UnknownEventType,
			wantOutcome: domain.OutcomeUnknown,
			wantAddr:    "192.0.2.1",
		},
		{name: "invalid outcome", line: `{"status":"maybe","ip":"10.0.0.1"}`, wantErr: domain.ErrInvalidOutcome},
		{name: "missing address", line: `{"status":"failed"}`, wantErr: domain.ErrInvalidSourceAddress},
		{name: "not json", line: `login failed for alice`, wantErr: ErrInvalidLineFormat},
		{name: "broken json", line: `{"status":`, wantErr: ErrInvalidLineFormat},
		{name: "oversized", line: `{"username":"` + strings.Repeat("x", MaxLineLength) + `"}`, wantErr: ErrInvalidLineFormat},
	}

	for _, tt := range tests {
		tt := tt // per-iteration copy (go 1.21 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			req, err := parser.Parse(tt.line)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, req.EventType)
			assert.Equal(t, tt.wantIdentity, req.Identity)
			assert.Equal(t, tt.wantOutcome, req.Outcome)
			assert.Equal(t, netip.MustParseAddr(tt.wantAddr), req.SourceAddress)
		})
	}

	assert.Equal(t, "json", parser.Format())
}

func TestSSHAuthParser(t *testing.T) {
	parser := NewSSHAuthParser()

	tests := []struct {
		name         string
		line         string
		wantErr      bool
		wantIdentity string
		wantOutcome  domain.Outcome
		wantAddr     string
	}{
		{
			name:         "failed password",
			line:         "Jan 10 12:00:00 web sshd[812]: Failed password for root from 203.0.113.5 port 52144 ssh2",
			wantIdentity: "root",
			wantOutcome:  domain.OutcomeFailed,
			wantAddr:     "203.0.113.5",
		},
		{
			name:         "failed invalid user",
			line:         "Jan 10 12:00:01 web sshd[812]: Failed password for invalid user oracle from 203.0.113.5 port 52146 ssh2",
			wantIdentity: "oracle",
			wantOutcome:  domain.OutcomeFailed,
			wantAddr:     "203.0.113.5",
		},
		{
			name:         "accepted publickey",
			line:         "Jan 10 12:00:02 web sshd[900]: Accepted publickey for alice from 2001:db8::7 port 40022 ssh2: ED25519 SHA256:abc",
			wantIdentity: "alice",
			wantOutcome:  domain.OutcomeSucceeded,
			wantAddr:     "2001:db8::7",
		},
		{name: "invalid user line ignored", line: "Jan 10 12:00:01 web sshd[812]: Invalid user oracle from 203.0.113.5 port 52146", wantErr: true},
		{name: "unrelated", line: "Jan 10 12:00:03 web CRON[1]: session opened", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt // per-iteration copy (go 1.21 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			req, err := parser.Parse(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLineFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ssh_login", req.EventType)
			assert.Equal(t, tt.wantIdentity, req.Identity)
			assert.Equal(t, tt.wantOutcome, req.Outcome)
			assert.Equal(t, netip.MustParseAddr(tt.wantAddr), req.SourceAddress)
		})
	}
}

func TestNewParser(t *testing.T) {
	p, err := NewParser("")
	require.NoError(t, err)
	assert.Equal(t, "json", p.Format())

	p, err = NewParser("SSHD")
	require.NoError(t, err)
	assert.Equal(t, "sshd", p.Format())

	_, err = NewParser("clf")
	assert.Error(t, err)
}
