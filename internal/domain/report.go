package domain

import (
	"errors"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyNarrative = errors.New("empty narrative")

type IncidentReport struct {
	ID            string      `json:"id"`
	SourceAddress netip.Addr  `json:"source_address"`
	AttemptCount  int         `json:"attempt_count"`
	Identity      string      `json:"identity,omitempty"`
	Enrichment    *Enrichment `json:"enrichment,omitempty"`
	Narrative     string      `json:"narrative"`
	Generator     string      `json:"generator"`
	GeneratedAt   time.Time   `json:"generated_at"`
}

func NewIncidentReport(trigger Trigger, enrichment Enrichment, narrative, generator string, at time.Time) *IncidentReport {
	r := &IncidentReport{
		ID:            uuid.NewString(),
		SourceAddress: trigger.SourceAddress,
		AttemptCount:  trigger.Count,
		Identity:      trigger.Identity,
		Narrative:     narrative,
		Generator:     generator,
		GeneratedAt:   at.UTC(),
	}
	if !enrichment.IsEmpty() {
		e := enrichment
		r.Enrichment = &e
	}
	return r
}
