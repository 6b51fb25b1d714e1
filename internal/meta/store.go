// Package meta persists per-cache download records and runs the TTL/size
// eviction sweep over them. One Store instance exists per cache kind
// (whole-asset, hls), both sharing a single bbolt file; the design assumes
// one active writer process.
package meta

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Record describes one cached download.
// LocalPath must point to an existing file for the record to be considered
// valid; GetValid re-verifies that on every lookup instead of trusting
// metadata.
type Record struct {
	RemoteURL string    `json:"remoteUrl"`
	LocalPath string    `json:"localPath"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	// OwnerID ties the record to the catalog item that justified caching
	// it. Diagnostics only; eviction never looks at it.
	OwnerID string `json:"ownerId,omitempty"`
}

// Expired reports whether the record's TTL has passed at time now.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

type state struct {
	TotalSizeBytes int64     `json:"totalSizeBytes"`
	LastSweptAt    time.Time `json:"lastSweptAt"`
}

var stateKey = []byte("state")

// Store is a persistent remoteURL→Record mapping with size accounting.
type Store struct {
	db       *bolt.DB
	bucket   []byte
	stBucket []byte

	mu sync.Mutex // serializes read-modify-write of the state record
}

// Open opens (or creates) the shared bbolt file at path.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("meta: open %s: %w", path, err)
	}
	return db, nil
}

// NewStore binds a named store to db, creating its buckets and verifying
// the size accounting against the actual records.
func NewStore(db *bolt.DB, name string) (*Store, error) {
	s := &Store{
		db:       db,
		bucket:   []byte(name),
		stBucket: []byte(name + "_state"),
	}
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(s.stBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("meta: init %s: %w", name, err)
	}
	// Defensive: recompute the size sum on startup so drift from a crashed
	// previous run never persists.
	if err := s.recomputeTotal(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the store's bucket name (used as metrics label).
func (s *Store) Name() string { return string(s.bucket) }

// Put inserts or replaces the record for rec.RemoteURL, updating the size
// sum atomically in the same transaction.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		st := s.readState(tx)
		if old := b.Get([]byte(rec.RemoteURL)); old != nil {
			var prev Record
			if json.Unmarshal(old, &prev) == nil {
				st.TotalSizeBytes -= prev.SizeBytes
			}
		}
		if err := b.Put([]byte(rec.RemoteURL), data); err != nil {
			return err
		}
		st.TotalSizeBytes += rec.SizeBytes
		if st.TotalSizeBytes < 0 {
			st.TotalSizeBytes = sumRecords(b)
		}
		return s.writeState(tx, st)
	})
}

// Get returns the raw record for remoteURL without validity checks.
func (s *Store) Get(remoteURL string) (Record, bool) {
	var rec Record
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(remoteURL))
		if data == nil {
			return nil
		}
		if json.Unmarshal(data, &rec) == nil {
			found = true
		}
		return nil
	})
	return rec, found
}

// GetValid returns the record only when it is unexpired and its file still
// exists on disk. A record whose file vanished out-of-band is dropped
// lazily here and reported as a miss.
func (s *Store) GetValid(remoteURL string) (Record, bool) {
	rec, ok := s.Get(remoteURL)
	if !ok {
		return Record{}, false
	}
	if rec.Expired(time.Now()) {
		return Record{}, false
	}
	if _, err := os.Stat(rec.LocalPath); err != nil {
		if err := s.Delete(remoteURL); err != nil {
			log.Printf("meta: drop stale %s record url=%q err=%v", s.Name(), remoteURL, err)
		}
		return Record{}, false
	}
	return rec, true
}

// Delete removes the record for remoteURL and adjusts the size sum. The
// cached file itself is not touched.
func (s *Store) Delete(remoteURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.deleteInTx(tx, remoteURL)
	})
}

func (s *Store) deleteInTx(tx *bolt.Tx, remoteURL string) error {
	b := tx.Bucket(s.bucket)
	data := b.Get([]byte(remoteURL))
	if data == nil {
		return nil
	}
	var rec Record
	haveSize := json.Unmarshal(data, &rec) == nil
	if err := b.Delete([]byte(remoteURL)); err != nil {
		return err
	}
	st := s.readState(tx)
	if haveSize {
		st.TotalSizeBytes -= rec.SizeBytes
	}
	if st.TotalSizeBytes < 0 {
		st.TotalSizeBytes = sumRecords(b)
	}
	return s.writeState(tx, st)
}

// All returns every record in the store, unordered.
func (s *Store) All() []Record {
	var out []Record
	s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, v []byte) error {
			var rec Record
			if json.Unmarshal(v, &rec) == nil {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out
}

// TotalSize returns the tracked byte sum over all live records.
func (s *Store) TotalSize() int64 {
	var n int64
	s.db.View(func(tx *bolt.Tx) error {
		n = s.readState(tx).TotalSizeBytes
		return nil
	})
	return n
}

// Clear drops every record and deletes the payload files they reference.
// remove may be nil (plain file delete) or override how a record's payload
// is removed. Delete failures are logged and ignored; the metadata is
// dropped either way so the records cannot go stale.
func (s *Store) Clear(remove func(Record) error) error {
	if remove == nil {
		remove = func(r Record) error { return os.Remove(r.LocalPath) }
	}
	for _, rec := range s.All() {
		if err := remove(rec); err != nil && !os.IsNotExist(err) {
			log.Printf("meta: clear %s: remove %q: %v", s.Name(), rec.LocalPath, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(s.bucket); err != nil {
			return err
		}
		return s.writeState(tx, state{LastSweptAt: s.readState(tx).LastSweptAt})
	})
}

func (s *Store) readState(tx *bolt.Tx) state {
	var st state
	if data := tx.Bucket(s.stBucket).Get(stateKey); data != nil {
		_ = json.Unmarshal(data, &st)
	}
	return st
}

func (s *Store) writeState(tx *bolt.Tx, st state) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return tx.Bucket(s.stBucket).Put(stateKey, data)
}

func sumRecords(b *bolt.Bucket) int64 {
	var n int64
	b.ForEach(func(_, v []byte) error {
		var rec Record
		if json.Unmarshal(v, &rec) == nil {
			n += rec.SizeBytes
		}
		return nil
	})
	return n
}

func (s *Store) recomputeTotal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		st := s.readState(tx)
		actual := sumRecords(tx.Bucket(s.bucket))
		if st.TotalSizeBytes != actual {
			if st.TotalSizeBytes != 0 {
				log.Printf("meta: %s size drift tracked=%d actual=%d, fixed", s.Name(), st.TotalSizeBytes, actual)
			}
			st.TotalSizeBytes = actual
			return s.writeState(tx, st)
		}
		return nil
	})
}
