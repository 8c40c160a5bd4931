package input

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
)

const MaxLineLength = 8192

var ErrInvalidLineFormat = errors.New("invalid event line format")

// jsonEventLine is one line of a JSON-lines event feed. Field names follow
// the HTTP form (event_type, username, status); identity/outcome and
// ip/source_address are accepted as aliases.
type jsonEventLine struct {
	EventType     string `json:"event_type"`
	Username      string `json:"username"`
	Identity      string `json:"identity"`
	Status        string `json:"status"`
	Outcome       string `json:"outcome"`
	IP            string `json:"ip"`
	SourceAddress string `json:"source_address"`
}

// JSONEventParser parses {"event_type","username","status","ip"} lines.
type JSONEventParser struct{}

func NewJSONEventParser() *JSONEventParser {
	return &JSONEventParser{}
}

func (p *JSONEventParser) Parse(line string) (domain.IngestRequest, error) {
	line = strings.TrimSpace(line)
	if len(line) > MaxLineLength {
		return domain.IngestRequest{}, fmt.Errorf("%w: line exceeds %d bytes", ErrInvalidLineFormat, MaxLineLength)
	}
	if len(line) < 2 || line[0] != '{' {
		return domain.IngestRequest{}, ErrInvalidLineFormat
	}

	var raw jsonEventLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return domain.IngestRequest{}, fmt.Errorf("%w: %v", ErrInvalidLineFormat, err)
	}

	return domain.NewIngestRequest(
		raw.EventType,
		firstNonEmpty(raw.Username, raw.Identity),
		firstNonEmpty(raw.Status, raw.Outcome),
		firstNonEmpty(raw.IP, raw.SourceAddress),
	)
}

func (p *JSONEventParser) Format() string {
	return "json"
}

var (
	sshFailedRe   = regexp.MustCompile(`Failed (?:password|publickey|keyboard-interactive/pam) for (?:invalid user )?(\S*) from (\S+) port \d+`)
	sshAcceptedRe = regexp.MustCompile(`Accepted (?:password|publickey|keyboard-interactive/pam) for (\S+) from (\S+) port \d+`)
)

// SSHAuthParser parses OpenSSH sshd lines from auth.log / journal output.
// Only password/publickey attempts are recognized; the "Invalid user" line
// that precedes a failed attempt is ignored so it is not counted twice.
// Every other line is rejected with ErrInvalidLineFormat.
type SSHAuthParser struct{}

func NewSSHAuthParser() *SSHAuthParser {
	return &SSHAuthParser{}
}

func (p *SSHAuthParser) Parse(line string) (domain.IngestRequest, error) {
	if len(line) > MaxLineLength {
		return domain.IngestRequest{}, fmt.Errorf("%w: line exceeds %d bytes", ErrInvalidLineFormat, MaxLineLength)
	}

	if m := sshFailedRe.FindStringSubmatch(line); m != nil {
		return domain.NewIngestRequest("ssh_login", m[1], string(domain.OutcomeFailed), m[2])
	}
	if m := sshAcceptedRe.FindStringSubmatch(line); m != nil {
		return domain.NewIngestRequest("ssh_login", m[1], string(domain.OutcomeSucceeded), m[2])
	}
	return domain.IngestRequest{}, ErrInvalidLineFormat
}

func (p *SSHAuthParser) Format() string {
	return "sshd"
}

// NewParser returns the parser for format ("json" or "sshd").
func NewParser(format string) (ports.EventParser, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return NewJSONEventParser(), nil
	case "sshd", "ssh", "auth":
		return NewSSHAuthParser(), nil
	default:
		return nil, fmt.Errorf("unknown event line format %q", format)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
