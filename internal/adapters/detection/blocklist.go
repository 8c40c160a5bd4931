package detection

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/Reddy-45/siem/internal/domain"
)

// BlockRegistry is the set of source addresses currently denied ingress.
// Entries are created by the detector and removed only by Unblock or Clear;
// nothing expires on its own.
//
// Thread Safety: All methods are safe for concurrent access. Block is an
// atomic insert-if-absent, so concurrent triggers for one address produce
// exactly one successful Block.
type BlockRegistry struct {
	entries map[netip.Addr]domain.BlockEntry
	mu      sync.RWMutex
}

func NewBlockRegistry() *BlockRegistry {
	return &BlockRegistry{
		entries: make(map[netip.Addr]domain.BlockEntry),
	}
}

// IsBlocked reports whether addr is currently blocked. O(1).
func (r *BlockRegistry) IsBlocked(addr netip.Addr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[addr]
	return ok
}

// Block inserts entry unless its address is already present.
//
// Returns:
//   - true if the entry was inserted
//   - false if the address was already blocked (registry unchanged)
func (r *BlockRegistry) Block(entry domain.BlockEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.SourceAddress]; exists {
		return false
	}
	r.entries[entry.SourceAddress] = entry
	return true
}

// Unblock removes addr. Returns false if it was not present.
func (r *BlockRegistry) Unblock(addr netip.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[addr]; !exists {
		return false
	}
	delete(r.entries, addr)
	return true
}

func (r *BlockRegistry) Get(addr netip.Addr) (domain.BlockEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[addr]
	return entry, ok
}

// List returns all entries ordered by BlockedAt, then address.
func (r *BlockRegistry) List() []domain.BlockEntry {
	r.mu.RLock()
	out := make([]domain.BlockEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].SourceAddress.Less(out[j].SourceAddress)
		}
		return out[i].BlockedAt.Before(out[j].BlockedAt)
	})
	return out
}

// Addresses returns the blocked address set.
func (r *BlockRegistry) Addresses() []netip.Addr {
	entries := r.List()
	out := make([]netip.Addr, len(entries))
	for i, entry := range entries {
		out[i] = entry.SourceAddress
	}
	return out
}

func (r *BlockRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *BlockRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[netip.Addr]domain.BlockEntry)
}
