// Package detection implements brute-force detection for the SIEM engine.
//
// This file provides the sliding-window detector that turns failed events in
// the EventStore into block triggers.
//
// Detection Strategy:
//  1. Scan the EventStore for events observed within the window of now
//  2. Keep failed outcomes (optionally only login-classified event types)
//  3. Group by source address and count
//  4. Emit a trigger for each address at or above the threshold that is not
//     already present in the BlockRegistry
//
// Thread Safety: The policy is swapped atomically, so hot reloads never block
// an evaluation in progress.
package detection

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Reddy-45/siem/internal/domain"
)

// DetectionPolicy configures the brute-force detector.
type DetectionPolicy struct {
	Threshold       int           // Failures in window that trigger a block (default: 5)
	Window          time.Duration // Sliding window length (default: 300s)
	LoginOnly       bool          // Count only login-classified event types
	LoginEventTypes []string      // Event types treated as login attempts

	// ForgiveOnUnblock stops failures stored before a manual unblock from
	// counting toward the next block of that address.
	ForgiveOnUnblock bool
}

// DefaultDetectionPolicy returns the production defaults.
//
// Defaults:
//   - 5 failed events within 300 seconds block the source address
//   - Every failed event counts, whatever its event type
//   - A manual unblock forgives the failures already stored
func DefaultDetectionPolicy() DetectionPolicy {
	return DetectionPolicy{
		Threshold:        5,
		Window:           300 * time.Second,
		LoginOnly:        false,
		LoginEventTypes:  []string{"login", "login_attempt", "login_failed", "auth", "ssh_login"},
		ForgiveOnUnblock: true,
	}
}

// Validate rejects policies that could never or would always trigger.
func (p DetectionPolicy) Validate() error {
	if p.Threshold < 1 {
		return fmt.Errorf("brute force threshold must be positive, got %d", p.Threshold)
	}
	if p.Window <= 0 {
		return fmt.Errorf("brute force window must be positive, got %s", p.Window)
	}
	if p.LoginOnly && len(p.LoginEventTypes) == 0 {
		return fmt.Errorf("login-only counting needs at least one login event type")
	}
	return nil
}

// compiledPolicy is the immutable form stored behind the atomic pointer.
type compiledPolicy struct {
	DetectionPolicy
	loginTypes map[string]struct{}
}

func compilePolicy(p DetectionPolicy) *compiledPolicy {
	types := make(map[string]struct{}, len(p.LoginEventTypes))
	copied := make([]string, 0, len(p.LoginEventTypes))
	for _, t := range p.LoginEventTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		types[t] = struct{}{}
		copied = append(copied, t)
	}
	p.LoginEventTypes = copied
	return &compiledPolicy{DetectionPolicy: p, loginTypes: types}
}

// counts reports whether ev contributes to the failure tally.
func (p *compiledPolicy) counts(ev domain.Event) bool {
	if !ev.IsFailure() {
		return false
	}
	if !p.LoginOnly {
		return true
	}
	_, ok := p.loginTypes[strings.ToLower(ev.EventType)]
	return ok
}

// BruteForceDetector evaluates the sliding window over an EventStore.
type BruteForceDetector struct {
	store    *EventStore
	registry *BlockRegistry
	policy   atomic.Pointer[compiledPolicy]

	// forgiven holds the store sequence number at manual unblock per
	// address; failures stored at or before it no longer count.
	forgiven   map[netip.Addr]uint64
	forgivenMu sync.RWMutex
}

// NewBruteForceDetector creates a detector over store, skipping addresses
// already present in registry.
//
// Returns:
//   - Configured detector
//   - Error if the policy is invalid
func NewBruteForceDetector(store *EventStore, registry *BlockRegistry, policy DetectionPolicy) (*BruteForceDetector, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	d := &BruteForceDetector{
		store:    store,
		registry: registry,
		forgiven: make(map[netip.Addr]uint64),
	}
	d.policy.Store(compilePolicy(policy))
	return d, nil
}

// Policy returns the active policy.
func (d *BruteForceDetector) Policy() DetectionPolicy {
	p := d.policy.Load().DetectionPolicy
	p.LoginEventTypes = append([]string(nil), p.LoginEventTypes...)
	return p
}

// SetPolicy validates and atomically installs a new policy.
func (d *BruteForceDetector) SetPolicy(policy DetectionPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	d.policy.Store(compilePolicy(policy))
	return nil
}

// tally accumulates per-address state during one evaluation.
type tally struct {
	count      int
	first      time.Time
	last       time.Time
	identities map[string]*identityTally
	enrichment *domain.Enrichment
}

type identityTally struct {
	count int
	last  uint64
}

// Evaluate scans the window anchored at now and returns the newly triggered
// addresses.
//
// Returns:
//   - One Trigger per address whose failure count within the window reaches
//     the threshold and which is not already blocked, ordered by the time of
//     the latest counted failure
//
// Edge Cases:
//   - Boundary is inclusive: an event counts when now - ObservedAt <= window
//   - Successful events neither count nor reset the tally
//   - Evaluation is idempotent; blocked addresses are skipped
//
// Complexity: O(k) over the events inside the window
func (d *BruteForceDetector) Evaluate(now time.Time) []domain.Trigger {
	policy := d.policy.Load()
	events := d.store.EventsWithin(policy.Window, now)

	tallies := make(map[netip.Addr]*tally)
	for _, ev := range events {
		if !policy.counts(ev) || d.isForgiven(policy, ev) {
			continue
		}

		t, ok := tallies[ev.SourceAddress]
		if !ok {
			t = &tally{first: ev.ObservedAt, identities: make(map[string]*identityTally)}
			tallies[ev.SourceAddress] = t
		}
		t.count++
		t.last = ev.ObservedAt
		if ev.Enrichment != nil {
			t.enrichment = ev.Enrichment
		}
		if ev.Identity != "" {
			it, ok := t.identities[ev.Identity]
			if !ok {
				it = &identityTally{}
				t.identities[ev.Identity] = it
			}
			it.count++
			it.last = ev.Seq
		}
	}

	var triggers []domain.Trigger
	for addr, t := range tallies {
		if t.count < policy.Threshold || d.registry.IsBlocked(addr) {
			continue
		}
		triggers = append(triggers, domain.Trigger{
			SourceAddress: addr,
			Count:         t.count,
			Identity:      dominantIdentity(t.identities),
			Enrichment:    t.enrichment,
			FirstSeen:     t.first,
			LastSeen:      t.last,
		})
	}

	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].LastSeen.Equal(triggers[j].LastSeen) {
			return triggers[i].SourceAddress.Less(triggers[j].SourceAddress)
		}
		return triggers[i].LastSeen.Before(triggers[j].LastSeen)
	})
	return triggers
}

// FailureCount returns the counted failures for addr within the window.
func (d *BruteForceDetector) FailureCount(addr netip.Addr, now time.Time) int {
	policy := d.policy.Load()
	count := 0
	for _, ev := range d.store.EventsWithin(policy.Window, now) {
		if ev.SourceAddress == addr && policy.counts(ev) && !d.isForgiven(policy, ev) {
			count++
		}
	}
	return count
}

// dominantIdentity picks the identity with the most failures, breaking ties
// by the most recent attempt.
func dominantIdentity(identities map[string]*identityTally) string {
	best := ""
	var bestTally *identityTally
	for identity, it := range identities {
		if bestTally == nil || it.count > bestTally.count ||
			(it.count == bestTally.count && it.last > bestTally.last) {
			best = identity
			bestTally = it
		}
	}
	return best
}

// Forgive marks the failure history of addr up to and including the event
// with sequence number throughSeq. Called on manual unblock; the mark only
// affects counting while the policy has ForgiveOnUnblock set.
func (d *BruteForceDetector) Forgive(addr netip.Addr, throughSeq uint64) {
	d.forgivenMu.Lock()
	defer d.forgivenMu.Unlock()
	d.forgiven[addr] = throughSeq
}

// ResetForgiveness drops all forgiveness marks. Called on clear.
func (d *BruteForceDetector) ResetForgiveness() {
	d.forgivenMu.Lock()
	defer d.forgivenMu.Unlock()
	d.forgiven = make(map[netip.Addr]uint64)
}

func (d *BruteForceDetector) isForgiven(policy *compiledPolicy, ev domain.Event) bool {
	if !policy.ForgiveOnUnblock {
		return false
	}
	d.forgivenMu.RLock()
	seq, ok := d.forgiven[ev.SourceAddress]
	d.forgivenMu.RUnlock()
	return ok && ev.Seq <= seq
}

// Name returns the detector identifier for logging and metrics.
func (d *BruteForceDetector) Name() string {
	return "brute_force"
}
