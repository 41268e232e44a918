package record

import (
	"testing"
	"time"
)

func newTestRecord(owner, content string, ts time.Time) *Record {
	return &Record{
		RecordID:  owner + "-" + content,
		OwnerID:   owner,
		Timestamp: ts,
		Type:      TypeKnowledge,
		Importance: 0.5,
		Content:   content,
		Isolation: IsolationPrivate,
	}
}

func TestStoreAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 50)
	now := time.Now().UTC()

	r := newTestRecord("nyx", "Prefer JSONL for hot tier", now)
	r.Tags = []string{"design", "storage"}
	if err := s.Store(r); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Query(Filter{OwnerID: "nyx", Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Content != r.Content {
		t.Fatalf("content mismatch: %q", got[0].Content)
	}
	if len(got[0].Tags) != 2 {
		t.Fatalf("tags not preserved: %+v", got[0].Tags)
	}
}

func TestQueryReverseChronologicalWithinFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 50)
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := newTestRecord("nyx", "msg", base.Add(time.Duration(i)*time.Minute))
		r.RecordID = "r" + string(rune('0'+i))
		if err := s.Store(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Query(Filter{OwnerID: "nyx"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].RecordID != "r2" {
		t.Fatalf("expected newest first, got %s", got[0].RecordID)
	}
}

func TestStoreRejectsWhenTierFull(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0) // maxFileMB 0 -> defaults to 50; force tiny cap manually below
	s.maxFileMB = 0
	now := time.Now().UTC()
	// A maxFileMB of 0 means capBytes == 0; even the first append should be rejected
	// once the file exists. First store creates the file with no cap check (file absent).
	r1 := newTestRecord("nyx", "first", now)
	if err := s.Store(r1); err != nil {
		t.Fatalf("first store should succeed: %v", err)
	}
	r2 := newTestRecord("nyx", "second", now)
	err := s.Store(r2)
	if err != ErrTierFull {
		t.Fatalf("expected ErrTierFull, got %v", err)
	}

	got, _ := s.Query(Filter{OwnerID: "nyx"})
	if len(got) != 1 {
		t.Fatalf("expected no bytes appended after TIER_FULL, got %d records", len(got))
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 50)
	now := time.Now().UTC()
	r := newTestRecord("nyx", "ephemeral note", now)
	if err := s.Store(r); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Delete("nyx", r.RecordID, now)
	if err != nil {
		t.Fatal(err)
	}
	if removed == nil || removed.Content != "ephemeral note" {
		t.Fatalf("expected removed record with original content, got %+v", removed)
	}

	got, _ := s.Query(Filter{OwnerID: "nyx"})
	if len(got) != 0 {
		t.Fatalf("expected zero records after delete, got %d", len(got))
	}
}

func TestCompactDropsArchivedAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 50)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		r := newTestRecord("nyx", "msg", now)
		r.RecordID = "r" + string(rune('0'+i))
		r.Archived = i < 3 // 3 of 4 archived = 75%
		if err := s.Store(r); err != nil {
			t.Fatal(err)
		}
	}

	dropped, err := s.Compact(now, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", dropped)
	}

	got, _ := s.Query(Filter{OwnerID: "nyx", IncludeArchived: true})
	if len(got) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(got))
	}
}
