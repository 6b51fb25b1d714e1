package meta

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweep_expiredPass(t *testing.T) {
	_, s := openTest(t)
	now := time.Now()
	expired := writeTempFile(t, 4)
	live := writeTempFile(t, 4)
	s.Put(rec("expired", expired, 4, now.Add(-2*time.Hour), time.Hour))
	s.Put(rec("live", live, 4, now, time.Hour))

	sw := &Sweeper{Store: s, MaxBytes: 1 << 20, Interval: time.Minute}
	sw.SweepNow()

	if _, ok := s.Get("expired"); ok {
		t.Error("expired record should be evicted")
	}
	if _, err := os.Stat(expired); !os.IsNotExist(err) {
		t.Error("expired payload should be deleted")
	}
	if _, ok := s.Get("live"); !ok {
		t.Error("live record should survive")
	}
	if s.TotalSize() != 4 {
		t.Errorf("TotalSize = %d, want 4", s.TotalSize())
	}
}

func TestSweep_sizeCapOldestFirst(t *testing.T) {
	_, s := openTest(t)
	now := time.Now()
	oldest := writeTempFile(t, 10)
	middle := writeTempFile(t, 10)
	newest := writeTempFile(t, 10)
	s.Put(rec("oldest", oldest, 10, now.Add(-3*time.Hour), 24*time.Hour))
	s.Put(rec("middle", middle, 10, now.Add(-2*time.Hour), 24*time.Hour))
	s.Put(rec("newest", newest, 10, now.Add(-1*time.Hour), 24*time.Hour))

	sw := &Sweeper{Store: s, MaxBytes: 20, Interval: time.Minute}
	sw.SweepNow()

	if _, ok := s.Get("oldest"); ok {
		t.Error("oldest record should be evicted first")
	}
	if _, ok := s.Get("middle"); !ok {
		t.Error("middle record should survive at the cap")
	}
	if _, ok := s.Get("newest"); !ok {
		t.Error("newest record should survive")
	}
	if s.TotalSize() != 20 {
		t.Errorf("TotalSize = %d, want 20", s.TotalSize())
	}
	if s.TotalSize() < 0 {
		t.Error("TotalSize must never go negative")
	}
}

func TestSweep_intervalGate(t *testing.T) {
	_, s := openTest(t)
	now := time.Now()
	sw := &Sweeper{Store: s, MaxBytes: 1 << 20, Interval: time.Hour}

	sw.SweepNow() // stamps lastSweptAt

	expired := writeTempFile(t, 4)
	s.Put(rec("expired", expired, 4, now.Add(-2*time.Hour), time.Hour))

	sw.Sweep() // gated: within the interval, must be a no-op
	if _, ok := s.Get("expired"); !ok {
		t.Error("gated sweep should not evict")
	}

	sw.SweepNow()
	if _, ok := s.Get("expired"); ok {
		t.Error("forced sweep should evict")
	}
}

func TestSweep_missingFileStillEvicts(t *testing.T) {
	_, s := openTest(t)
	now := time.Now()
	gone := filepath.Join(t.TempDir(), "never-written")
	s.Put(rec("gone", gone, 4, now.Add(-2*time.Hour), time.Hour))

	sw := &Sweeper{Store: s, MaxBytes: 1 << 20, Interval: time.Minute}
	sw.SweepNow()

	if _, ok := s.Get("gone"); ok {
		t.Error("record with already-missing file should still be dropped")
	}
	if s.TotalSize() != 0 {
		t.Errorf("TotalSize = %d", s.TotalSize())
	}
}

func TestSweep_customRemove(t *testing.T) {
	_, s := openTest(t)
	now := time.Now()
	dir := filepath.Join(t.TempDir(), "hlsentry")
	os.MkdirAll(dir, 0755)
	manifest := filepath.Join(dir, "index.m3u8")
	seg := filepath.Join(dir, "seg0.ts")
	os.WriteFile(manifest, []byte("#EXTM3U\n"), 0644)
	os.WriteFile(seg, make([]byte, 8), 0644)
	s.Put(rec("m", manifest, 8, now.Add(-2*time.Hour), time.Hour))

	sw := &Sweeper{
		Store:    s,
		MaxBytes: 1 << 20,
		Interval: time.Minute,
		Remove:   func(r Record) error { return os.RemoveAll(filepath.Dir(r.LocalPath)) },
	}
	sw.SweepNow()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("whole entry dir should be removed")
	}
}
