package access

import (
	"testing"
	"time"

	"github.com/katra-project/katra/internal/audit"
	"github.com/katra-project/katra/internal/record"
	"github.com/katra-project/katra/internal/team"
)

func newChecker(t *testing.T) (*Checker, *audit.Log) {
	t.Helper()
	dir := t.TempDir()
	log := audit.Open(dir)
	teams := team.NewStore(dir)
	return NewChecker(teams, log), log
}

func TestOwnerAlwaysAllowed(t *testing.T) {
	c, _ := newChecker(t)
	r := &record.Record{OwnerID: "nyx", RecordID: "r1", Isolation: record.IsolationPrivate}
	if !c.Filter("nyx", r) {
		t.Fatal("expected owner to be allowed regardless of isolation")
	}
}

func TestPublicAllowedForOthers(t *testing.T) {
	c, _ := newChecker(t)
	r := &record.Record{OwnerID: "nyx", RecordID: "r1", Isolation: record.IsolationPublic}
	if !c.Filter("vex", r) {
		t.Fatal("expected PUBLIC record to be allowed for a non-owner")
	}
}

func TestPrivateDeniedForOthers(t *testing.T) {
	c, log := newChecker(t)
	r := &record.Record{OwnerID: "nyx", RecordID: "r1", Isolation: record.IsolationPrivate}
	if c.Filter("vex", r) {
		t.Fatal("expected PRIVATE record to be denied for a non-owner")
	}
	denied, err := log.Query("vex", audit.EventAccessDenied, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(denied) != 1 {
		t.Fatalf("expected one ACCESS_DENIED row, got %d", len(denied))
	}
}

func TestTeamAllowedForMemberDeniedForNonMember(t *testing.T) {
	dir := t.TempDir()
	log := audit.Open(dir)
	teams := team.NewStore(dir)
	if _, err := teams.Create("avengers", "nyx", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := teams.Join("avengers", "vex"); err != nil {
		t.Fatal(err)
	}
	c := NewChecker(teams, log)

	r := &record.Record{OwnerID: "nyx", RecordID: "r1", Isolation: record.IsolationTeam, TeamName: "avengers"}
	if !c.Filter("vex", r) {
		t.Fatal("expected team member to be allowed")
	}
	if c.Filter("rook", r) {
		t.Fatal("expected non-member to be denied")
	}
}

func TestUnknownIsolationDenied(t *testing.T) {
	c, _ := newChecker(t)
	r := &record.Record{OwnerID: "nyx", RecordID: "r1", Isolation: "BOGUS"}
	if c.Filter("vex", r) {
		t.Fatal("expected unknown isolation to deny")
	}
}

func TestFilterAll(t *testing.T) {
	c, _ := newChecker(t)
	recs := []*record.Record{
		{OwnerID: "nyx", RecordID: "r1", Isolation: record.IsolationPublic},
		{OwnerID: "nyx", RecordID: "r2", Isolation: record.IsolationPrivate},
	}
	got := c.FilterAll("vex", recs)
	if len(got) != 1 || got[0].RecordID != "r1" {
		t.Fatalf("expected only the PUBLIC record, got %+v", got)
	}
}
