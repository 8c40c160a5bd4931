package domain

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

const (
	MaxFieldLength   = 256
	UnknownEventType = "unknown"
)

var (
	ErrInvalidOutcome       = errors.New("invalid outcome")
	ErrInvalidSourceAddress = errors.New("invalid source address")
	ErrInvalidObservedAt    = errors.New("invalid observed_at")
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnknown   Outcome = "unknown"
)

// ParseOutcome maps the status vocabulary used by upstream reporters onto
// the three outcomes. An empty string is unknown; unrecognised words are
// rejected so that a typo never silently stops failures from counting.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return OutcomeUnknown, nil
	case "failed", "fail", "failure":
		return OutcomeFailed, nil
	case "succeeded", "success", "ok":
		return OutcomeSucceeded, nil
	default:
		return OutcomeUnknown, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

type Enrichment struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Network string `json:"network,omitempty"`
}

func NoEnrichment() Enrichment {
	return Enrichment{}
}

func (e Enrichment) IsEmpty() bool {
	return e.Country == "" && e.City == "" && e.Network == ""
}

// IngestRequest is a validated event as handed over by a transport.
type IngestRequest struct {
	EventType     string
	Identity      string
	Outcome       Outcome
	SourceAddress netip.Addr
}

func NewIngestRequest(eventType, identity, outcome, sourceAddress string) (IngestRequest, error) {
	o, err := ParseOutcome(outcome)
	if err != nil {
		return IngestRequest{}, err
	}

	addr, err := ParseSourceAddress(sourceAddress)
	if err != nil {
		return IngestRequest{}, err
	}

	eventType = ClampField(strings.TrimSpace(eventType))
	if eventType == "" {
		eventType = UnknownEventType
	}

	return IngestRequest{
		EventType:     eventType,
		Identity:      ClampField(strings.TrimSpace(identity)),
		Outcome:       o,
		SourceAddress: addr,
	}, nil
}

func ParseSourceAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidSourceAddress, s)
	}
	return addr.Unmap().WithZone(""), nil
}

// ClampField truncates s to at most MaxFieldLength bytes on a rune boundary.
func ClampField(s string) string {
	if len(s) <= MaxFieldLength {
		return s
	}
	n := MaxFieldLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Event is immutable once stored. The enrichment pointer is shared between
// copies and must never be written through.
type Event struct {
	Seq           uint64
	EventType     string
	Identity      string
	Outcome       Outcome
	SourceAddress netip.Addr
	Enrichment    *Enrichment
	ObservedAt    time.Time
	RiskScore     int
}

func NewEvent(req IngestRequest, enrichment Enrichment, seq uint64, observedAt time.Time) Event {
	ev := Event{
		Seq:           seq,
		EventType:     req.EventType,
		Identity:      req.Identity,
		Outcome:       req.Outcome,
		SourceAddress: req.SourceAddress,
		ObservedAt:    observedAt,
		RiskScore:     RiskScore(req.EventType),
	}
	if !enrichment.IsEmpty() {
		e := enrichment
		ev.Enrichment = &e
	}
	return ev
}

func (e Event) IsFailure() bool {
	return e.Outcome == OutcomeFailed
}

type eventJSON struct {
	Seq           uint64      `json:"seq"`
	EventType     string      `json:"event_type"`
	Identity      string      `json:"identity,omitempty"`
	Outcome       Outcome     `json:"outcome"`
	SourceAddress netip.Addr  `json:"source_address"`
	Enrichment    *Enrichment `json:"enrichment,omitempty"`
	ObservedAt    float64     `json:"observed_at"`
	RiskScore     int         `json:"risk_score"`
}

// MarshalJSON writes observed_at as float seconds since the epoch, the
// format used by the persisted event log.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Seq:           e.Seq,
		EventType:     e.EventType,
		Identity:      e.Identity,
		Outcome:       e.Outcome,
		SourceAddress: e.SourceAddress,
		Enrichment:    e.Enrichment,
		ObservedAt:    EpochSeconds(e.ObservedAt),
		RiskScore:     e.RiskScore,
	})
}

// eventRecord is the decode side of a persisted event. The original
// receiver's field names (username, status, ip, timestamp) are accepted as
// aliases so an older event log can be restored.
type eventRecord struct {
	Seq           uint64      `json:"seq"`
	EventType     string      `json:"event_type"`
	Identity      string      `json:"identity"`
	Username      string      `json:"username"`
	Outcome       string      `json:"outcome"`
	Status        string      `json:"status"`
	SourceAddress string      `json:"source_address"`
	IP            string      `json:"ip"`
	Enrichment    *Enrichment `json:"enrichment"`
	ObservedAt    float64     `json:"observed_at"`
	Timestamp     float64     `json:"timestamp"`
}

// UnmarshalJSON validates a persisted event the same way ingestion does.
// Records with an unknown outcome, an unparseable address or a missing
// timestamp are rejected.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	req, err := NewIngestRequest(
		raw.EventType,
		orDefault(raw.Identity, raw.Username),
		orDefault(raw.Outcome, raw.Status),
		orDefault(raw.SourceAddress, raw.IP),
	)
	if err != nil {
		return err
	}

	observed := raw.ObservedAt
	if observed == 0 {
		observed = raw.Timestamp
	}
	if observed <= 0 || math.IsNaN(observed) || math.IsInf(observed, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidObservedAt, observed)
	}

	var enrichment Enrichment
	if raw.Enrichment != nil {
		enrichment = *raw.Enrichment
	}
	*e = NewEvent(req, enrichment, raw.Seq, FromEpochSeconds(observed))
	return nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func FromEpochSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
