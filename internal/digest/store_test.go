package digest

import (
	"testing"
	"time"
)

func newTestDigest(owner string, pt PeriodType, periodID string, ts time.Time) *Digest {
	return &Digest{
		DigestID:   owner + "-" + periodID,
		PeriodID:   periodID,
		PeriodType: pt,
		DigestType: "summary",
		Timestamp:  ts,
		OwnerID:    owner,
		Summary:    "a period of work",
	}
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	d := newTestDigest("nyx", PeriodWeekly, WeeklyPeriodID(time.Now()), time.Now())
	if err := s.Append(d); err != nil {
		t.Fatal(err)
	}

	got, err := s.Query(Filter{OwnerID: "nyx"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DigestID != d.DigestID {
		t.Fatalf("expected to recall the digest, got %+v", got)
	}
}

func TestQueryFiltersByPeriodType(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	now := time.Now()
	weekly := newTestDigest("nyx", PeriodWeekly, WeeklyPeriodID(now), now)
	monthly := newTestDigest("nyx", PeriodMonthly, MonthlyPeriodID(now), now)
	if err := s.Append(weekly); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(monthly); err != nil {
		t.Fatal(err)
	}

	got, err := s.Query(Filter{OwnerID: "nyx", PeriodType: PeriodMonthly})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PeriodType != PeriodMonthly {
		t.Fatalf("expected only the monthly digest, got %+v", got)
	}
}

func TestQueryFiltersByThemeAndKeyword(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	now := time.Now()
	d := newTestDigest("nyx", PeriodWeekly, WeeklyPeriodID(now), now)
	d.Themes = []string{"refactor", "testing"}
	d.Keywords = []string{"jsonl", "sqlite"}
	if err := s.Append(d); err != nil {
		t.Fatal(err)
	}

	got, err := s.Query(Filter{OwnerID: "nyx", ThemeContains: "refactor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected theme match, got %+v", got)
	}

	got, err = s.Query(Filter{OwnerID: "nyx", KeywordContains: "nonexistent"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no keyword match, got %+v", got)
	}
}

func TestAppendRejectsWhenTierFull(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	s.maxFileMB = 0
	now := time.Now()
	periodID := WeeklyPeriodID(now)

	first := newTestDigest("nyx", PeriodWeekly, periodID, now)
	if err := s.Append(first); err != nil {
		t.Fatalf("first append should succeed before the file exists: %v", err)
	}

	second := newTestDigest("nyx", PeriodWeekly, periodID, now)
	if err := s.Append(second); err != ErrTierFull {
		t.Fatalf("expected ErrTierFull, got %v", err)
	}
}

func TestAcknowledgeMarksDigestArchived(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	now := time.Now()
	d := newTestDigest("nyx", PeriodWeekly, WeeklyPeriodID(now), now)
	if err := s.Append(d); err != nil {
		t.Fatal(err)
	}

	found, err := s.Acknowledge(d.DigestID)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected to find and acknowledge the digest")
	}

	got, err := s.Query(Filter{OwnerID: "nyx", IncludeArchived: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Archived {
		t.Fatalf("expected the digest to be archived, got %+v", got)
	}

	missing, err := s.Acknowledge("does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	if missing {
		t.Fatal("expected no match for an unknown digest id")
	}
}

func TestQueryOrdersNewestPeriodFirst(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	older := newTestDigest("nyx", PeriodWeekly, "2025-W01", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	newer := newTestDigest("nyx", PeriodWeekly, "2025-W02", time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC))
	if err := s.Append(older); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(newer); err != nil {
		t.Fatal(err)
	}

	got, err := s.Query(Filter{OwnerID: "nyx"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].PeriodID != "2025-W02" {
		t.Fatalf("expected newest period first, got %+v", got)
	}
}
