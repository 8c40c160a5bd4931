package output

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/Reddy-45/siem/internal/domain"
)

var ReportBucket = []byte("incident_reports")

// BoltReportArchive keeps every generated incident report in an embedded
// bbolt database, keyed by report ID. The archive is an audit trail: it
// survives restarts and is not emptied by a clear of the live state.
type BoltReportArchive struct {
	db    *bolt.DB
	path  string
	count atomic.Int64
}

// NewBoltReportArchive opens (or creates) the archive at path.
//
// Returns:
//   - Archive ready for Write
//   - Error if the directory, database or bucket cannot be created
func NewBoltReportArchive(path string) (*BoltReportArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:    time.Second,
		NoGrowSync: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	var count int
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(ReportBucket)
		if err != nil {
			return err
		}
		count = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	a := &BoltReportArchive{db: db, path: path}
	a.count.Store(int64(count))

	log.Info().
		Str("path", path).
		Int("reports", count).
		Msg("Report archive opened")
	return a, nil
}

// Write stores report under its ID. Rewriting an existing ID replaces it.
func (a *BoltReportArchive) Write(ctx context.Context, report *domain.IncidentReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	var added bool
	err = a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ReportBucket)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		added = b.Get([]byte(report.ID)) == nil
		return b.Put([]byte(report.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to archive report %s: %w", report.ID, err)
	}
	if added {
		a.count.Add(1)
	}
	return nil
}

// Get returns the report with the given ID.
func (a *BoltReportArchive) Get(id string) (*domain.IncidentReport, bool) {
	var result *domain.IncidentReport
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ReportBucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		r := &domain.IncidentReport{}
		if err := json.Unmarshal(data, r); err != nil {
			return fmt.Errorf("undecodable report: %w", err)
		}
		result = r
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Report archive read failed")
		return nil, false
	}
	return result, result != nil
}

// List returns all archived reports ordered by GeneratedAt. Undecodable
// records are skipped with a warning.
func (a *BoltReportArchive) List() ([]*domain.IncidentReport, error) {
	var out []*domain.IncidentReport
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ReportBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			r := &domain.IncidentReport{}
			if err := json.Unmarshal(v, r); err != nil {
				log.Warn().Str("id", string(k)).Err(err).Msg("Skipping undecodable archived report")
				return nil
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	return out, nil
}

// ListByAddress returns the archived reports for addr, oldest first.
func (a *BoltReportArchive) ListByAddress(addr netip.Addr) ([]*domain.IncidentReport, error) {
	all, err := a.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.SourceAddress == addr {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *BoltReportArchive) Count() int64 {
	return a.count.Load()
}

func (a *BoltReportArchive) Close() error {
	if a.db != nil {
		log.Info().Int64("reports", a.count.Load()).Msg("Closing report archive")
		return a.db.Close()
	}
	return nil
}
