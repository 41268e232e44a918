package audit

import (
	"path/filepath"
	"testing"
)

func TestAppendAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log := Open(dir)

	if err := log.Denied("nyx", "vex", "rec-1", "isolation PRIVATE"); err != nil {
		t.Fatal(err)
	}
	if err := log.Allowed("nyx", "vex", "rec-2"); err != nil {
		t.Fatal(err)
	}

	denied, err := log.Query("nyx", EventAccessDenied, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(denied) != 1 || denied[0].RecordID != "rec-1" {
		t.Fatalf("expected one denied row, got %+v", denied)
	}

	all, err := log.Query("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two rows total, got %d", len(all))
	}
}

func TestQueryOnMissingFileReturnsEmpty(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "nested"))
	got, err := log.Query("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
