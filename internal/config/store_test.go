package config

import (
	"strings"
	"sync"
	"testing"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Default().Snapshot(nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return s
}

func TestConfigSnapshot(t *testing.T) {
	cfg := Default()
	cfg.Wayback.Date = "199911"
	cfg.Wayback.DateTolerance = -1
	s, err := cfg.Snapshot(NewWhitelist("localhost"))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if s.Date != "19991101000000" || s.RawDate != "199911" {
		t.Errorf("Date = %q, RawDate = %q", s.Date, s.RawDate)
	}
	if s.Target.Year() != 1999 || s.Target.Month() != 11 {
		t.Errorf("Target = %v", s.Target)
	}
	if !s.ToleranceUnlimited() {
		t.Error("negative tolerance should be unlimited")
	}
	if !s.Whitelist.Match("localhost:8080") {
		t.Error("whitelist was not carried into the snapshot")
	}
}

func TestSnapshotWithDate(t *testing.T) {
	s := testSnapshot(t)
	next, err := s.WithDate("2005")
	if err != nil {
		t.Fatalf("WithDate() error = %v", err)
	}
	if next.Date != "20050101000000" {
		t.Errorf("Date = %q", next.Date)
	}
	if s.Date != "20011025000000" {
		t.Errorf("original snapshot mutated: %q", s.Date)
	}
	if _, err := s.WithDate("20x5"); err == nil {
		t.Error("WithDate() expected error for bad date")
	}
}

func TestStoreUpdateConcurrent(t *testing.T) {
	st := NewStore(testSnapshot(t))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Update(func(s *Snapshot) (*Snapshot, error) {
				next := *s
				next.ToleranceDays++
				return &next, nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := st.Load().ToleranceDays; got != 365+50 {
		t.Errorf("ToleranceDays = %d, expected %d", got, 365+50)
	}
}

func TestStoreUpdateErrorKeepsSnapshot(t *testing.T) {
	orig := testSnapshot(t)
	st := NewStore(orig)
	_, err := st.Update(func(s *Snapshot) (*Snapshot, error) { return s.WithDate("bad") })
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("Update() error = %v", err)
	}
	if st.Load() != orig {
		t.Error("failed update replaced the snapshot")
	}
}
