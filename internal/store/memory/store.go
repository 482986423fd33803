// Package memory provides an in-memory scan result store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sitesleuth/sitesleuth/internal/scan"
)

// Store keeps scan records in memory with the same freshness and ownership
// semantics as the Postgres store.
type Store struct {
	mu      sync.RWMutex
	records []scan.ScanRecord
	clock   scan.Clock
}

var _ scan.ResultStore = (*Store)(nil)

// New creates an empty Store.
func New(clock scan.Clock) *Store {
	return &Store{clock: clock}
}

// Lookup returns the newest fresh record for (fingerprint, owner), or nil.
func (s *Store) Lookup(_ context.Context, fp scan.Fingerprint, ownerID string) (*scan.ScanRecord, error) {
	if ownerID == "" {
		return nil, nil
	}
	cutoff := s.clock.Now().Add(-scan.FreshnessWindow)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *scan.ScanRecord
	for i := range s.records {
		r := s.records[i]
		if r.OwnerID != ownerID || r.Fingerprint != fp || !r.CreatedAt.After(cutoff) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			cp := r
			best = &cp
		}
	}
	return best, nil
}

// Save appends a record.
func (s *Store) Save(_ context.Context, record scan.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// ListRecent returns up to limit records for the owner, newest first.
func (s *Store) ListRecent(_ context.Context, ownerID string, limit int) ([]scan.ScanRecord, error) {
	if ownerID == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []scan.ScanRecord
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
