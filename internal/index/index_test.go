package index

import (
	"context"
	"testing"
	"time"

	"github.com/katra-project/katra/internal/record"
)

func testRecord(owner, content string) *record.Record {
	return &record.Record{
		RecordID:   owner + "-" + content,
		OwnerID:    owner,
		Timestamp:  time.Now().UTC(),
		Type:       record.TypeKnowledge,
		Importance: 0.5,
		Content:    content,
		Isolation:  record.IsolationPrivate,
	}
}

func TestUpsertAndRecallAbout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := Open(ctx, dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	r := testRecord("nyx", "Prefer JSONL for hot tier storage")
	if err := idx.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := idx.RecallAbout(ctx, "nyx", "JSONL", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RecordID != r.RecordID {
		t.Fatalf("expected to recall the record, got %+v", got)
	}
}

func TestRecallAboutNoMatchReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	got, err := idx.RecallAbout(ctx, "nyx", "nonexistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	r := testRecord("nyx", "about to archive")
	if err := idx.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	n, err := idx.Archive(ctx, r.RecordID, "aged out", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}

	n2, err := idx.Archive(ctx, r.RecordID, "aged out", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("expected second archive to affect zero rows, got %d", n2)
	}
}

func TestForgetRemovesFromMemoriesAndFTSAndLogs(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	r := testRecord("nyx", "ephemeral note")
	if err := idx.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	if err := idx.Forget(ctx, r.OwnerID, r.RecordID, r.Content, "test", time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := idx.RecallAbout(ctx, "nyx", "ephemeral", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected record gone from recall, got %+v", got)
	}

	entry, err := idx.ForgetLogFor(ctx, r.RecordID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Content != "ephemeral note" {
		t.Fatalf("expected forget log to preserve content, got %q", entry.Content)
	}
}

func TestTouchAccessIncrementsCount(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	r := testRecord("nyx", "accessed record")
	if err := idx.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := idx.TouchAccess(ctx, r.RecordID, now); err != nil {
		t.Fatal(err)
	}
	if err := idx.TouchAccess(ctx, r.RecordID, now); err != nil {
		t.Fatal(err)
	}

	var count int
	row := idx.db.QueryRowContext(ctx, `SELECT access_count FROM memories WHERE record_id=?`, r.RecordID)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected access_count 2, got %d", count)
	}
}
