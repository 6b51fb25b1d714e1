package meta

import (
	"log"
	"os"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/shopkit/mediacache/internal/metrics"
)

// Sweeper evicts expired records, then trims oldest-first until the store
// is under its byte cap. Safe to call often: a sweep only runs when
// Interval has elapsed since the previous one.
type Sweeper struct {
	Store    *Store
	MaxBytes int64
	Interval time.Duration
	// Remove deletes the payload behind a record. Defaults to removing
	// LocalPath; the HLS cache overrides it to drop the whole per-manifest
	// directory (manifest + segment).
	Remove func(rec Record) error
}

// Sweep runs one gated eviction pass. Best-effort housekeeping: file delete
// failures are logged and swallowed, never surfaced to the caller, and a
// failed delete leaves the record in place for the next pass so the size
// accounting keeps matching what is actually on disk.
func (sw *Sweeper) Sweep() {
	sw.sweep(false)
}

// SweepNow bypasses the interval gate. Used when a size-cap overshoot is
// already known, and by tests.
func (sw *Sweeper) SweepNow() {
	sw.sweep(true)
}

func (sw *Sweeper) sweep(force bool) {
	s := sw.Store
	now := time.Now()
	if !sw.claimSweep(now, force) {
		return
	}

	name := s.Name()
	var freedRecs, freedBytes int64

	// Pass 1: expired records. Delete the file first, account only after
	// the delete succeeded.
	for _, rec := range s.All() {
		if !rec.Expired(now) {
			continue
		}
		if !sw.removePayload(rec, name) {
			continue
		}
		if err := s.Delete(rec.RemoteURL); err != nil {
			log.Printf("meta: sweep %s: drop record url=%q err=%v", name, rec.RemoteURL, err)
			continue
		}
		freedRecs++
		freedBytes += rec.SizeBytes
		metrics.EvictedRecords.WithLabelValues(name, "expired").Inc()
	}

	// Pass 2: size cap, oldest first.
	if sw.MaxBytes > 0 && s.TotalSize() > sw.MaxBytes {
		recs := s.All()
		sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
		for _, rec := range recs {
			if s.TotalSize() <= sw.MaxBytes {
				break
			}
			if !sw.removePayload(rec, name) {
				continue
			}
			if err := s.Delete(rec.RemoteURL); err != nil {
				log.Printf("meta: sweep %s: drop record url=%q err=%v", name, rec.RemoteURL, err)
				continue
			}
			freedRecs++
			freedBytes += rec.SizeBytes
			metrics.EvictedRecords.WithLabelValues(name, "size").Inc()
		}
	}

	if freedRecs > 0 {
		metrics.EvictedBytes.WithLabelValues(name).Add(float64(freedBytes))
		log.Printf("meta: sweep %s evicted=%d freed=%d total=%d", name, freedRecs, freedBytes, s.TotalSize())
	}
}

// claimSweep checks the interval gate and stamps lastSweptAt in one
// transaction, so overlapping callers cannot both start a pass.
func (sw *Sweeper) claimSweep(now time.Time, force bool) bool {
	s := sw.Store
	claimed := false
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		st := s.readState(tx)
		if !force && !st.LastSweptAt.IsZero() && now.Sub(st.LastSweptAt) < sw.Interval {
			return nil
		}
		st.LastSweptAt = now
		claimed = true
		return s.writeState(tx, st)
	})
	if err != nil {
		log.Printf("meta: sweep %s: claim: %v", s.Name(), err)
		return false
	}
	return claimed
}

// removePayload deletes the record's on-disk payload, treating an
// already-missing file as success.
func (sw *Sweeper) removePayload(rec Record, name string) bool {
	remove := sw.Remove
	if remove == nil {
		remove = func(r Record) error { return os.Remove(r.LocalPath) }
	}
	if err := remove(rec); err != nil && !os.IsNotExist(err) {
		log.Printf("meta: sweep %s: remove %q: %v", name, rec.LocalPath, err)
		return false
	}
	return true
}
