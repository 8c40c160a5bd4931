package domain

import (
	"net/netip"
	"time"
)

type BlockEntry struct {
	SourceAddress   netip.Addr `json:"source_address"`
	BlockedAt       time.Time  `json:"blocked_at"`
	TriggerCount    int        `json:"trigger_count"`
	TriggerIdentity string     `json:"trigger_identity,omitempty"`
}

// Trigger is produced when an address first reaches the failure threshold
// inside the detection window.
type Trigger struct {
	SourceAddress netip.Addr
	Count         int
	Identity      string
	Enrichment    *Enrichment
	FirstSeen     time.Time
	LastSeen      time.Time
}

func (t Trigger) BlockEntry(at time.Time) BlockEntry {
	return BlockEntry{
		SourceAddress:   t.SourceAddress,
		BlockedAt:       at,
		TriggerCount:    t.Count,
		TriggerIdentity: t.Identity,
	}
}

func (t Trigger) EnrichmentSnapshot() Enrichment {
	if t.Enrichment == nil {
		return NoEnrichment()
	}
	return *t.Enrichment
}
